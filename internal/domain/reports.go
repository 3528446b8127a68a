package domain

import "time"

// TrendReport summarises yield loss over a trailing window.
type TrendReport struct {
	ItemID       *int64       `json:"item_id,omitempty"`
	WindowDays   int          `json:"window_days"`
	SampleSize   int          `json:"sample_size"`
	Mean         float64      `json:"mean"`
	Stdev        float64      `json:"stdev"`
	Min          float64      `json:"min"`
	Max          float64      `json:"max"`
	AnomalyCount int          `json:"anomaly_count"`
	Status       HealthStatus `json:"status"`
}

// ItemComparison ranks one output item against the cross-item mean.
type ItemComparison struct {
	Rank                int          `json:"rank"`
	ItemID              int64        `json:"item_id"`
	ItemName            string       `json:"item_name"`
	SampleSize          int          `json:"sample_size"`
	Mean                float64      `json:"mean"`
	Stdev               float64      `json:"stdev"`
	Min                 float64      `json:"min"`
	Max                 float64      `json:"max"`
	DeviationFromGlobal float64      `json:"deviation_from_global"`
	Status              HealthStatus `json:"status"`
}

type ComparisonReport struct {
	WindowDays int              `json:"window_days"`
	GlobalMean float64          `json:"global_mean"`
	Items      []ItemComparison `json:"items"`
}

// SeasonalIndex maps a calendar month ("01".."12") to its loss ratio
// against the global mean.
type SeasonalIndex struct {
	Indices    map[string]float64 `json:"indices"`
	GlobalMean float64            `json:"global_mean"`
	SampleSize int                `json:"sample_size"`
	ComputedAt time.Time          `json:"computed_at"`
}

// Factor returns the index for a month, or 1 when the month has no history.
func (s *SeasonalIndex) Factor(month time.Month) float64 {
	if s == nil {
		return 1
	}
	if f, ok := s.Indices[MonthKey(month)]; ok {
		return f
	}
	return 1
}

// MonthKey formats a month as a two-digit period key.
func MonthKey(m time.Month) string {
	return time.Date(2000, m, 1, 0, 0, 0, 0, time.UTC).Format("01")
}

type Forecast struct {
	ItemID         *int64  `json:"item_id,omitempty"`
	MonthsAhead    int     `json:"months_ahead"`
	CurrentMean    float64 `json:"current_mean"`
	Predicted      float64 `json:"predicted"`
	CILower        float64 `json:"ci_lower"`
	CIUpper        float64 `json:"ci_upper"`
	SeasonalFactor float64 `json:"seasonal_factor"`
	PeriodLabel    string  `json:"period_label"`
	SampleSize     int     `json:"sample_size"`
}

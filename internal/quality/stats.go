package quality

import "math"

// Summary holds descriptive statistics of a sample of loss rates.
type Summary struct {
	N     int
	Mean  float64
	Stdev float64
	Min   float64
	Max   float64
}

// Summarize computes mean, sample standard deviation (n-1), min and max.
// Stdev is 0 for fewer than two values.
func Summarize(values []float64) Summary {
	s := Summary{N: len(values)}
	if s.N == 0 {
		return s
	}

	s.Min, s.Max = values[0], values[0]
	sum := 0.0
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(s.N)

	if s.N > 1 {
		sq := 0.0
		for _, v := range values {
			d := v - s.Mean
			sq += d * d
		}
		s.Stdev = math.Sqrt(sq / float64(s.N-1))
	}
	return s
}

package domain

import "strings"

// ChangeType classifies a ledger movement.
type ChangeType string

const (
	ChangeReceipt          ChangeType = "RECEIPT"
	ChangeProductionInput  ChangeType = "PRODUCTION_INPUT"
	ChangeProductionOutput ChangeType = "PRODUCTION_OUTPUT"
	ChangeAdjustment       ChangeType = "ADJUSTMENT"
	ChangeWaste            ChangeType = "WASTE"
	ChangeCorrection       ChangeType = "CORRECTION"
)

var changeTypes = map[string]ChangeType{
	"receipt":           ChangeReceipt,
	"production_input":  ChangeProductionInput,
	"production_output": ChangeProductionOutput,
	"adjustment":        ChangeAdjustment,
	"waste":             ChangeWaste,
	"correction":        ChangeCorrection,
}

// ParseChangeType returns the change type for a label (case-insensitive).
func ParseChangeType(label string) (ChangeType, bool) {
	ct, ok := changeTypes[strings.ToLower(strings.TrimSpace(label))]
	return ct, ok
}

// IsProduction reports whether the movement was posted by a production run.
func (c ChangeType) IsProduction() bool {
	return c == ChangeProductionInput || c == ChangeProductionOutput
}

type WarningDirection string

const (
	DirectionHigh WarningDirection = "HIGH"
	DirectionLow  WarningDirection = "LOW"
)

type WarningSeverity string

const (
	SeverityWarning  WarningSeverity = "WARNING"
	SeverityCritical WarningSeverity = "CRITICAL"
)

// HealthStatus grades a trend or a per-item comparison.
type HealthStatus string

const (
	StatusNormal    HealthStatus = "NORMAL"
	StatusAttention HealthStatus = "ATTENTION"
	StatusCritical  HealthStatus = "CRITICAL"
)

// Stage is the furthest point a production request reached.
type Stage string

const (
	StageValidated      Stage = "VALIDATED"
	StageCosted         Stage = "COSTED"
	StagePosted         Stage = "POSTED"
	StageBatched        Stage = "BATCHED"
	StageQualityChecked Stage = "QUALITY_CHECKED"
)

// ProfileTitle renders a roast profile such as "LIGHT" as "Light".
func ProfileTitle(profile string) string {
	p := strings.ToLower(strings.TrimSpace(profile))
	if p == "" {
		return ""
	}
	return strings.ToUpper(p[:1]) + p[1:]
}

// NormalizeProfile upper-cases and trims a roast profile.
func NormalizeProfile(profile string) string {
	return strings.ToUpper(strings.TrimSpace(profile))
}

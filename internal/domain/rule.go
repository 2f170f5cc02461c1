package domain

// RuleConfig defines a custom detection rule evaluated over beneficiary
// profiles, supplementing the built-in detectors.
type RuleConfig struct {
	ID          string `json:"id"`
	SourceID    string `json:"sourceId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression over beneficiary variables
	Expression string `json:"expression"`

	// Outcome bands for score-to-severity mapping
	Bands []RuleBand `json:"bands"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// RuleBand maps a score range to an alert severity.
type RuleBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Severity   Severity `json:"severity"`
	Reason     string   `json:"reason"`
}

// RuleResult is the output of one rule evaluated against one beneficiary.
type RuleResult struct {
	RuleID      string   `json:"ruleId"`
	Beneficiary string   `json:"beneficiary"`
	Score       float64  `json:"score"`
	Severity    Severity `json:"severity"`
	Reason      string   `json:"reason"`
	Err         string   `json:"err,omitempty"`
}

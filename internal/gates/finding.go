package gates

// Severity classifies how serious a finding is for the decision engine.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Category groups checks by concern. Categories exist for reporting and
// debugging only; the decision engine looks at severity counts alone.
type Category string

const (
	CategoryMarketState   Category = "market_state"
	CategorySignalQuality Category = "signal_quality"
	CategoryExecution     Category = "execution"
)

// Details is the opaque structured payload a check attaches to its finding.
type Details map[string]interface{}

// Finding is a single rule violation or observation produced by evaluating
// one check against one snapshot. Findings are immutable after creation and
// belong to exactly one evaluation cycle.
type Finding struct {
	Severity Severity `json:"severity"`
	Category Category `json:"category"`
	Check    string   `json:"check"`
	Message  string   `json:"message"`
	Details  Details  `json:"details,omitempty"`
}

// CountBySeverity returns the critical and warning counts for a findings list.
func CountBySeverity(findings []Finding) (critical, warning int) {
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			critical++
		case SeverityWarning:
			warning++
		}
	}
	return critical, warning
}

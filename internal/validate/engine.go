package validate

import "github.com/sells-group/ticket-geocoder/internal/geo"

// Default rule thresholds.
const (
	DefaultLowConfidenceThreshold       = 0.65
	DefaultEmergencyConfidenceThreshold = 0.75
	DefaultMaxCityDistanceKM            = 50
)

// Engine runs an ordered list of rules and collects triggered flags.
// Flag order follows rule order; downstream tier computation only counts them.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine with the given rules, in order.
func NewEngine(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// DefaultEngine creates an engine with the built-in rule set and the given
// centroid table.
func DefaultEngine(centroids *geo.CentroidTable) *Engine {
	return NewEngine(
		LowConfidenceRule{Threshold: DefaultLowConfidenceThreshold},
		EmergencyConfidenceRule{Threshold: DefaultEmergencyConfidenceThreshold},
		CityDistanceRule{MaxKM: DefaultMaxCityDistanceKM, Centroids: centroids},
		FallbackApproachRule{},
		PartialDataRule{},
	)
}

// Run checks every rule against the input and returns the triggered flags in
// rule order.
func (e *Engine) Run(in Input) []Flag {
	var flags []Flag
	for _, rule := range e.rules {
		if f := rule.Check(in); f != nil {
			flags = append(flags, *f)
		}
	}
	return flags
}

// Codes extracts the short flag codes from triggered flags.
func Codes(flags []Flag) []string {
	if len(flags) == 0 {
		return nil
	}
	codes := make([]string, len(flags))
	for i, f := range flags {
		codes[i] = f.Code
	}
	return codes
}

package stock

// Classification buckets a stock level against its request.
type Classification uint8

const (
	Red Classification = iota
	Green
	BoldGreen
	Unavailable
)

var classificationNames = [...]string{
	Red:         "red",
	Green:       "green",
	BoldGreen:   "bold-green",
	Unavailable: "unavailable",
}

// String returns the legend name of the classification.
func (c Classification) String() string {
	if int(c) < len(classificationNames) {
		return classificationNames[c]
	}
	return "unknown"
}

// MarshalText encodes the classification by legend name.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseClassification parses a legend name.
func ParseClassification(s string) (Classification, bool) {
	for c, name := range classificationNames {
		if name == s {
			return Classification(c), true
		}
	}
	return Red, false
}

// Classifications returns all legend entries, best first.
func Classifications() []Classification {
	return []Classification{BoldGreen, Green, Red, Unavailable}
}

// Classify buckets stock against request. Zero stock with zero request is
// green, not unavailable.
func Classify(stock int64, request float64) Classification {
	s := float64(stock)
	switch {
	case stock == 0 && request > 0:
		return Unavailable
	case s >= 2*request:
		return BoldGreen
	case s >= request:
		return Green
	default:
		return Red
	}
}

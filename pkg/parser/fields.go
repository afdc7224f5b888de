package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/routelens/routelens/internal/model"
	"github.com/routelens/routelens/internal/pool"
)

var (
	regionPattern = regexp.MustCompile(`(?:^|\s)region=(\w+)`)
	locPattern    = regexp.MustCompile(`(?:^|\s)loc=([\w.]+)`)

	// fieldPattern matches key=value and key="quoted value"; the quoted form wins.
	fieldPattern = regexp.MustCompile(`(\w+)=(?:"([^"]*)"|(\S+))`)

	// idNamePattern matches "12345 (Name)" where Name may itself contain parentheses.
	idNamePattern = regexp.MustCompile(`^"?(\d+)\s*\((.+?)\)"?$`)

	tradeTypePattern = regexp.MustCompile(`type=(regular|hub)`)
	iterationPattern = regexp.MustCompile(`iteration=(\d+)`)
)

// Fields is the result of a key=value scan over a whole line.
type Fields map[string]string

// ScanFields collects every key=value token of line. Later occurrences of a
// key replace earlier ones.
func ScanFields(line string) Fields {
	fields := make(Fields)
	for _, m := range fieldPattern.FindAllStringSubmatchIndex(line, -1) {
		key := line[m[2]:m[3]]
		if m[4] >= 0 {
			fields[key] = line[m[4]:m[5]]
		} else {
			fields[key] = line[m[6]:m[7]]
		}
	}
	return fields
}

// Has reports whether every key is present with a non-empty value.
func (f Fields) Has(keys ...string) bool {
	for _, k := range keys {
		if f[k] == "" {
			return false
		}
	}
	return true
}

// TradeType returns the type= field when it is one of the two known modes.
func (f Fields) TradeType() (model.TradeType, bool) {
	return model.ParseTradeType(f["type"])
}

// Int parses a base-10 integer field.
func (f Fields) Int(key string) (int64, bool) {
	return parseInt(f[key])
}

// ExtractBase fills the fields every line carries. Timed stays false when
// the line does not start with a valid timestamp.
func ExtractBase(line string, loc *time.Location) model.Base {
	base := model.Base{Raw: line}

	if ts, ok := pool.LeadingTimestamp(line); ok {
		if t, err := pool.ParseLocalTimestamp(ts, loc); err == nil {
			base.Timestamp = t
			base.Timed = true
		}
	}
	if m := regionPattern.FindStringSubmatch(line); m != nil {
		base.Region = m[1]
	}
	if m := locPattern.FindStringSubmatch(line); m != nil {
		base.Loc = m[1]
	}
	return base
}

// ParseIDName decomposes a composite "ID (Name)" token, quoted or not.
func ParseIDName(s string) (model.IDName, bool) {
	m := idNamePattern.FindStringSubmatch(s)
	if m == nil {
		return model.IDName{}, false
	}
	id, ok := parseInt(m[1])
	if !ok {
		return model.IDName{}, false
	}
	return model.IDName{ID: id, Name: m[2]}, true
}

// ShipBaseName returns the part of a raw ship name before the first '-'.
func ShipBaseName(name string) string {
	if i := strings.IndexByte(name, '-'); i >= 0 {
		return name[:i]
	}
	return name
}

// optionalTradeInfo reads type= and iteration= where a line may carry neither.
func optionalTradeInfo(line string) (model.TradeType, int64) {
	var tt model.TradeType
	var iter int64
	if m := tradeTypePattern.FindStringSubmatch(line); m != nil {
		tt, _ = model.ParseTradeType(m[1])
	}
	if m := iterationPattern.FindStringSubmatch(line); m != nil {
		iter, _ = parseInt(m[1])
	}
	return tt, iter
}

// parseInt parses a signed base-10 integer. A logged "-0" or "+0" comes back
// as plain 0, so deltas compare equal to zero regardless of their sign.
func parseInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

package stock

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var residencePattern = regexp.MustCompile(`\s*Residence\s*`)

// Category returns the part of reason before the first '/'.
func Category(reason string) (string, bool) {
	cat, _, _ := strings.Cut(reason, "/")
	if cat == "" {
		return "", false
	}
	return cat, true
}

// Category priorities used by the default row order.
const (
	PriorityConstruction = 0
	PriorityPopulation   = 1
	PriorityProduction   = 2
	PriorityOther        = 3
)

// CategoryPriority ranks a good by the most important category among its
// reasons: any construction reason beats any population reason, which beats
// any production reason. Goods without reasons rank as other.
func CategoryPriority(reasons []string) int {
	best := PriorityOther
	for _, r := range reasons {
		cat, ok := Category(r)
		if !ok {
			continue
		}
		cat = strings.ToLower(cat)
		switch {
		case strings.HasPrefix(cat, "c"):
			return PriorityConstruction
		case strings.HasPrefix(cat, "po"):
			best = min(best, PriorityPopulation)
		case strings.HasPrefix(cat, "pr"):
			best = min(best, PriorityProduction)
		}
	}
	return best
}

func upperFirst(s string) string {
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}

// AbbreviateReason shortens a reason for table display:
//
//	Construction                      -> C
//	Production/Sewing Machine Factory -> Pr/SMF
//	Population/Worker Residence       -> Po/W
//	Production/Restaurant: Schnitzel  -> Pr/R
func AbbreviateReason(reason string) string {
	parts := strings.Split(reason, "/")
	if len(parts) == 1 {
		return upperFirst(reason)
	}

	category, sub := parts[0], parts[1]
	if before, _, found := strings.Cut(sub, ":"); found {
		sub = strings.TrimSpace(before)
	}
	sub = strings.TrimSpace(residencePattern.ReplaceAllString(sub, ""))

	var catAbbr string
	if utf8.RuneCountInString(category) <= 3 {
		catAbbr = upperFirst(category)
	} else {
		r1, n := utf8.DecodeRuneInString(category)
		r2, _ := utf8.DecodeRuneInString(category[n:])
		catAbbr = string([]rune{r1, r2})
	}

	var b strings.Builder
	for _, word := range strings.Fields(sub) {
		b.WriteString(upperFirst(word))
	}
	return catAbbr + "/" + b.String()
}

// AbbreviateReasons abbreviates each reason and joins them with " | ".
func AbbreviateReasons(reasons []string) string {
	codes := make([]string, len(reasons))
	for i, r := range reasons {
		codes[i] = AbbreviateReason(r)
	}
	return strings.Join(codes, " | ")
}

// ReasonGroup is one category of a reason tree.
type ReasonGroup struct {
	Category string   `json:"category"`
	Details  []string `json:"details"`
}

// BuildReasonTree groups "category/detail" reasons by category in first-seen
// order. Details are de-duplicated and sorted; a bare reason forms a category
// without details.
func BuildReasonTree(reasons []string) []ReasonGroup {
	var order []string
	details := make(map[string]Set)
	for _, r := range reasons {
		cat, detail, hasDetail := strings.Cut(r, "/")
		if _, seen := details[cat]; !seen {
			details[cat] = NewSet()
			order = append(order, cat)
		}
		if hasDetail {
			details[cat].Add(detail)
		}
	}

	tree := make([]ReasonGroup, len(order))
	for i, cat := range order {
		tree[i] = ReasonGroup{Category: cat, Details: details[cat].Sorted()}
	}
	return tree
}

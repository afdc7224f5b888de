package stock

import (
	"fmt"
	"sort"
	"strings"
)

// SortField selects the cell value used when sorting by an area column.
type SortField uint8

const (
	SortByStock SortField = iota
	SortByRequest
)

// String returns "stock" or "request".
func (f SortField) String() string {
	if f == SortByRequest {
		return "request"
	}
	return "stock"
}

// ParseSortField accepts "stock" and "request".
func ParseSortField(s string) (SortField, bool) {
	switch s {
	case "stock":
		return SortByStock, true
	case "request":
		return SortByRequest, true
	default:
		return SortByStock, false
	}
}

// MarshalText encodes the field by name.
func (f SortField) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText decodes "stock" or "request".
func (f *SortField) UnmarshalText(b []byte) error {
	v, ok := ParseSortField(string(b))
	if !ok {
		return fmt.Errorf("stock: unknown sort field %q", b)
	}
	*f = v
	return nil
}

// SortOrder is the direction of an area column sort.
type SortOrder uint8

const (
	SortNone SortOrder = iota
	SortAsc
	SortDesc
)

// String returns "", "asc" or "desc".
func (o SortOrder) String() string {
	switch o {
	case SortAsc:
		return "asc"
	case SortDesc:
		return "desc"
	default:
		return ""
	}
}

// ParseSortOrder accepts "asc", "desc" and "" (no sort).
func ParseSortOrder(s string) (SortOrder, bool) {
	switch strings.ToLower(s) {
	case "":
		return SortNone, true
	case "asc":
		return SortAsc, true
	case "desc":
		return SortDesc, true
	default:
		return SortNone, false
	}
}

// MarshalText encodes the order by name.
func (o SortOrder) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText decodes "asc", "desc" or "".
func (o *SortOrder) UnmarshalText(b []byte) error {
	v, ok := ParseSortOrder(string(b))
	if !ok {
		return fmt.Errorf("stock: unknown sort order %q", b)
	}
	*o = v
	return nil
}

// Query selects and orders the stock table.
//
// Goods and Areas are plain membership sets: an empty set selects nothing.
// Regions, Legend, Categories and Reasons restrict only when non-empty.
type Query struct {
	Regions    Set `json:"regions"`
	Areas      Set `json:"areas"`
	Goods      Set `json:"goods"`
	Legend     Set `json:"legend"`
	Categories Set `json:"categories"`
	Reasons    Set `json:"reasons"`

	// OnlyLatest hides cells older than their region's latest iteration.
	OnlyLatest bool `json:"onlyLatest"`

	SortBy    SortField `json:"sortBy"`
	SortArea  string    `json:"sortArea,omitempty"`
	SortOrder SortOrder `json:"sortOrder"`
}

// DefaultQuery selects every region, area and good of d, shows only the
// latest iteration and uses the default row order.
func DefaultQuery(d *Data) Query {
	return Query{
		Regions:    d.Regions.Clone(),
		Areas:      d.Areas.Clone(),
		Goods:      d.Goods.Clone(),
		Legend:     NewSet(),
		Categories: NewSet(),
		Reasons:    NewSet(),
		OnlyLatest: true,
		SortBy:     SortByStock,
	}
}

// Column is one area of the view.
type Column struct {
	Area       string `json:"area"`
	Region     string `json:"region"`
	RegionName string `json:"regionName"`
}

// Cell is the view of one good at one area. Present is false when there is
// no observation or the active filters hide it.
type Cell struct {
	Area    string       `json:"area"`
	Present bool         `json:"present"`
	Data    *Observation `json:"data,omitempty"`

	Classification Classification `json:"classification"`
	// RequestOK is stock >= request.
	RequestOK  bool   `json:"requestOk"`
	FlightText string `json:"flightText,omitempty"`

	// Outdated is only set when the query does not hide stale cells.
	Outdated        bool   `json:"outdated"`
	LatestIteration int64  `json:"latestIteration,omitempty"`
	Delta           string `json:"delta,omitempty"`
}

// Row is one good of the view.
type Row struct {
	Good        string   `json:"good"`
	Reasons     []string `json:"reasons"`
	ReasonCodes string   `json:"reasonCodes"`
	Priority    int      `json:"priority"`
	// Unavailable is true when no visible cell has stock.
	Unavailable bool   `json:"unavailable"`
	Cells       []Cell `json:"cells"`
}

// View is the result of Run: ordered columns and ordered rows whose cells
// line up with the columns.
type View struct {
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Run evaluates q against d. It does not modify d.
func Run(d *Data, q Query) *View {
	e := evaluator{d: d, q: q}
	areas := e.areas()

	view := &View{Columns: make([]Column, len(areas)), Rows: []Row{}}
	for i, a := range areas {
		region := d.AreaRegions[a]
		view.Columns[i] = Column{Area: a, Region: region, RegionName: RegionName(region)}
	}

	for _, good := range d.Goods.Sorted() {
		if !q.Goods.Has(good) || !e.visible(good, areas) {
			continue
		}
		reasons := d.GoodReasons(good)
		row := Row{
			Good:        good,
			Reasons:     reasons,
			ReasonCodes: AbbreviateReasons(reasons),
			Priority:    CategoryPriority(reasons),
			Unavailable: !e.anyUsable(good, areas, func(o Observation) bool { return o.Stock > 0 }),
			Cells:       make([]Cell, len(areas)),
		}
		for i, a := range areas {
			row.Cells[i] = e.cell(good, a)
		}
		view.Rows = append(view.Rows, row)
	}

	e.sortRows(view.Rows)
	return view
}

type evaluator struct {
	d *Data
	q Query
}

// areas returns the selected areas ordered by region then name.
func (e evaluator) areas() []string {
	var out []string
	for a := range e.d.Areas {
		if !e.q.Areas.Has(a) {
			continue
		}
		if e.q.Regions.Len() > 0 && !e.q.Regions.Has(e.d.AreaRegions[a]) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := RegionRank(e.d.AreaRegions[out[i]]), RegionRank(e.d.AreaRegions[out[j]])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

func (e evaluator) regionOK(obs Observation) bool {
	return e.q.Regions.Len() == 0 || e.q.Regions.Has(obs.Region)
}

// usable returns the observation of good at area when every active rule
// lets it through.
func (e evaluator) usable(good, area string) (Observation, bool) {
	obs, ok := e.d.Lookup(good, area)
	if !ok || !e.regionOK(obs) {
		return Observation{}, false
	}
	if e.q.OnlyLatest && e.d.IsOutdated(obs) {
		return Observation{}, false
	}
	return obs, true
}

func (e evaluator) anyUsable(good string, areas []string, pred func(Observation) bool) bool {
	for _, a := range areas {
		if obs, ok := e.usable(good, a); ok && pred(obs) {
			return true
		}
	}
	return false
}

// visible applies the row rules: some selected area has an observation in a
// selected region, and each non-empty legend, category and reason filter is
// matched by at least one usable cell.
func (e evaluator) visible(good string, areas []string) bool {
	hasData := false
	for _, a := range areas {
		if obs, ok := e.d.Lookup(good, a); ok && e.regionOK(obs) {
			hasData = true
			break
		}
	}
	if !hasData {
		return false
	}

	if e.q.Legend.Len() > 0 && !e.anyUsable(good, areas, func(o Observation) bool {
		return e.q.Legend.Has(Classify(o.Stock, o.Request).String())
	}) {
		return false
	}
	if e.q.Categories.Len() > 0 && !e.anyUsable(good, areas, func(o Observation) bool {
		for _, r := range o.Reasons {
			if c, ok := Category(r); ok && e.q.Categories.Has(c) {
				return true
			}
		}
		return false
	}) {
		return false
	}
	if e.q.Reasons.Len() > 0 && !e.anyUsable(good, areas, func(o Observation) bool {
		for _, r := range o.Reasons {
			if e.q.Reasons.Has(r) {
				return true
			}
		}
		return false
	}) {
		return false
	}
	return true
}

func (e evaluator) cell(good, area string) Cell {
	c := Cell{Area: area}
	obs, ok := e.usable(good, area)
	if !ok {
		return c
	}

	c.Present = true
	c.Data = &obs
	c.Classification = Classify(obs.Stock, obs.Request)
	c.RequestOK = float64(obs.Stock) >= obs.Request
	c.FlightText = FlightText(obs.InFlightIn, obs.InFlightOut)

	if latest, ok := e.d.Latest(obs.Region); ok {
		c.LatestIteration = latest
		if !e.q.OnlyLatest && obs.Iteration < latest {
			c.Outdated = true
			c.Delta = IterationDelta(obs.Iteration, latest)
		}
	}
	return c
}

// FlightText renders in-flight deltas as "+in/-out", omitting zero parts.
func FlightText(in, out int64) string {
	var parts []string
	if in != 0 {
		parts = append(parts, fmt.Sprintf("+%d", in))
	}
	if out != 0 {
		if out < 0 {
			out = -out
		}
		parts = append(parts, fmt.Sprintf("-%d", out))
	}
	return strings.Join(parts, "/")
}

// sortValue is the value of good's cell at the sort area; hidden cells count as 0.
func (e evaluator) sortValue(good string) float64 {
	obs, ok := e.usable(good, e.q.SortArea)
	if !ok {
		return 0
	}
	if e.q.SortBy == SortByRequest {
		return obs.Request
	}
	return float64(obs.Stock)
}

func (e evaluator) sortRows(rows []Row) {
	if e.q.SortArea != "" && e.q.SortOrder != SortNone {
		values := make(map[string]float64, len(rows))
		for _, r := range rows {
			values[r.Good] = e.sortValue(r.Good)
		}
		sort.SliceStable(rows, func(i, j int) bool {
			vi, vj := values[rows[i].Good], values[rows[j].Good]
			if e.q.SortOrder == SortAsc {
				return vi < vj
			}
			return vi > vj
		})
		return
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Unavailable != b.Unavailable {
			return !a.Unavailable
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Good < b.Good
	})
}

package stock

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/routelens/routelens/internal/model"
)

// sampleData covers two regions with one stale cell (Beer at Manola).
func sampleData() *Data {
	return Aggregate([]model.Event{
		stockEvent("NW", "Manola", "Beer", 20251211100000, 5, 10, "Population/Worker Residence"),
		stockEvent("NW", "Manola", "Soap", 20251211120000, 0, 30, "Production/Bakery"),
		stockEvent("OW", "Crown Falls", "Beer", 20251211120000, 200, 10, "Construction"),
		stockEvent("OW", "Crown Falls", "Soap", 20251211120000, 40, 30),
		stockEvent("OW", "Crown Falls", "Fish", 20251211120000, 0, 5),
		stockEvent("OW", "Zulu", "Fish", 20251211120000, 0, 0),
		stockEvent("OW", "Alpha", "Wood", 20251211120000, 10, 10, "Trade/Hub"),
		stockEvent("NW", "Manola", "Wood", 20251211120000, 3, 1),
	})
}

func rowGoods(v *View) []string {
	out := make([]string, len(v.Rows))
	for i, r := range v.Rows {
		out[i] = r.Good
	}
	return out
}

func columnAreas(v *View) []string {
	out := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		out[i] = c.Area
	}
	return out
}

func TestRun_DefaultOrder(t *testing.T) {
	d := sampleData()
	v := Run(d, DefaultQuery(d))

	// Region order puts OW before NW; names sort inside a region.
	if diff := cmp.Diff([]string{"Alpha", "Crown Falls", "Zulu", "Manola"}, columnAreas(v)); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}

	// Beer: construction. Soap: production. Wood: other.
	// Fish has no stock anywhere and goes last.
	if diff := cmp.Diff([]string{"Beer", "Soap", "Wood", "Fish"}, rowGoods(v)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	beer := v.Rows[0]
	if beer.ReasonCodes != "C | Po/W" {
		t.Errorf("ReasonCodes = %q, want %q", beer.ReasonCodes, "C | Po/W")
	}
	if !v.Rows[3].Unavailable {
		t.Error("Fish should be unavailable everywhere")
	}
}

func TestRun_OnlyLatestHidesStaleCells(t *testing.T) {
	d := sampleData()
	q := DefaultQuery(d)

	v := Run(d, q)
	manola := v.Rows[0].Cells[3]
	if manola.Area != "Manola" || manola.Present {
		t.Errorf("stale Beer@Manola cell = %+v, want hidden", manola)
	}

	q.OnlyLatest = false
	v = Run(d, q)
	manola = v.Rows[0].Cells[3]
	if !manola.Present || !manola.Outdated {
		t.Fatalf("Beer@Manola = %+v, want present and outdated", manola)
	}
	if manola.LatestIteration != 20251211120000 || manola.Delta != "2h" {
		t.Errorf("latest/delta = %d/%q, want 20251211120000/2h", manola.LatestIteration, manola.Delta)
	}
	if manola.Classification != Red || manola.RequestOK {
		t.Errorf("classification = %v requestOK = %v", manola.Classification, manola.RequestOK)
	}

	crown := v.Rows[0].Cells[1]
	if crown.Outdated || crown.Classification != BoldGreen {
		t.Errorf("Beer@Crown Falls = %+v", crown)
	}
}

func TestRun_RegionFilter(t *testing.T) {
	d := sampleData()
	q := DefaultQuery(d)
	q.Regions = NewSet("NW")

	v := Run(d, q)
	if diff := cmp.Diff([]string{"Manola"}, columnAreas(v)); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	// Fish has no NW observation. Beer's only NW cell is stale, so Beer has
	// no visible stock and sorts with the unavailable goods.
	if diff := cmp.Diff([]string{"Wood", "Beer", "Soap"}, rowGoods(v)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_GoodAndAreaSets(t *testing.T) {
	d := sampleData()
	q := DefaultQuery(d)
	q.Goods = NewSet("Soap")
	q.Areas = NewSet("Manola", "Crown Falls")

	v := Run(d, q)
	if diff := cmp.Diff([]string{"Soap"}, rowGoods(v)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if len(v.Rows[0].Cells) != 2 {
		t.Errorf("got %d cells, want 2", len(v.Rows[0].Cells))
	}

	q.Goods = NewSet()
	if v := Run(d, q); len(v.Rows) != 0 {
		t.Errorf("empty good set returned %d rows, want 0", len(v.Rows))
	}
}

func TestRun_LegendCategoryReasonFilters(t *testing.T) {
	d := sampleData()

	tests := []struct {
		name   string
		modify func(q *Query)
		want   []string
	}{
		{"legend unavailable", func(q *Query) { q.Legend = NewSet(Unavailable.String()) }, []string{"Soap", "Fish"}},
		{"legend bold-green", func(q *Query) { q.Legend = NewSet(BoldGreen.String()) }, []string{"Beer", "Wood", "Fish"}},
		{"category", func(q *Query) { q.Categories = NewSet("Production") }, []string{"Soap"}},
		// Beer's population reason sits on the stale cell.
		{"category stale only", func(q *Query) { q.Categories = NewSet("Population") }, []string{}},
		{"reason", func(q *Query) { q.Reasons = NewSet("Trade/Hub") }, []string{"Wood"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := DefaultQuery(d)
			tt.modify(&q)
			if diff := cmp.Diff(tt.want, rowGoods(Run(d, q))); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRun_EmptyFiltersMeanNoRestriction(t *testing.T) {
	d := sampleData()

	unfiltered := DefaultQuery(d)
	unfiltered.Legend, unfiltered.Categories, unfiltered.Reasons = nil, nil, nil

	empty := DefaultQuery(d)
	want := Run(d, unfiltered)
	if diff := cmp.Diff(want, Run(d, empty)); diff != "" {
		t.Errorf("empty filters differ from no filters (-want +got):\n%s", diff)
	}

	allLegend := DefaultQuery(d)
	allLegend.Legend = NewSet()
	for _, c := range Classifications() {
		allLegend.Legend.Add(c.String())
	}
	if diff := cmp.Diff(rowGoods(want), rowGoods(Run(d, allLegend))); diff != "" {
		t.Errorf("full legend differs from no legend (-want +got):\n%s", diff)
	}
}

func TestRun_AreaSort(t *testing.T) {
	d := sampleData()
	q := DefaultQuery(d)
	q.SortArea = "Crown Falls"
	q.SortOrder = SortDesc

	// Wood has no Crown Falls cell and ties with Fish at 0; ties keep name order.
	if diff := cmp.Diff([]string{"Beer", "Soap", "Fish", "Wood"}, rowGoods(Run(d, q))); diff != "" {
		t.Errorf("desc rows mismatch (-want +got):\n%s", diff)
	}

	q.SortOrder = SortAsc
	if diff := cmp.Diff([]string{"Fish", "Wood", "Soap", "Beer"}, rowGoods(Run(d, q))); diff != "" {
		t.Errorf("asc rows mismatch (-want +got):\n%s", diff)
	}

	q.SortBy = SortByRequest
	q.SortOrder = SortDesc
	if diff := cmp.Diff([]string{"Soap", "Beer", "Fish", "Wood"}, rowGoods(Run(d, q))); diff != "" {
		t.Errorf("request rows mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_DoesNotModifyData(t *testing.T) {
	d := sampleData()
	before := sampleData()
	q := DefaultQuery(d)
	q.OnlyLatest = false
	Run(d, q)

	if diff := cmp.Diff(before, d); diff != "" {
		t.Errorf("Run modified data (-before +after):\n%s", diff)
	}
}

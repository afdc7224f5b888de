// Package stock reduces area stock events to the latest observation per good
// and area, and answers filtered, sorted table queries over the result.
package stock

import (
	"strings"
	"time"

	"github.com/routelens/routelens/internal/model"
)

// UnknownRegion buckets observations from lines without a region= token.
const UnknownRegion = "Unknown"

// Observation is the stored state of one good at one area.
type Observation struct {
	Stock       int64     `json:"stock"`
	Request     float64   `json:"request"`
	InFlightIn  int64     `json:"inFlightIn"`
	InFlightOut int64     `json:"inFlightOut"`
	Iteration   int64     `json:"iteration"`
	Timestamp   time.Time `json:"timestamp"`
	Region      string    `json:"region"`
	Reasons     []string  `json:"reasons,omitempty"`
}

// Data is the aggregate of one profile's stock events. It is built once by
// Aggregate and never mutated afterwards; a reload builds a new one.
type Data struct {
	// Stocks maps good -> area -> latest observation.
	Stocks map[string]map[string]Observation `json:"stocks"`

	// LatestIterations is the highest iteration seen per region.
	LatestIterations map[string]int64 `json:"latestIterations"`

	// AreaRegions maps each area to the region of its first observation.
	AreaRegions map[string]string `json:"areaRegions"`

	Goods        Set `json:"goods"`
	Areas        Set `json:"areas"`
	Regions      Set `json:"regions"`
	Categories   Set `json:"categories"`
	ExactReasons Set `json:"exactReasons"`
}

// CleanName replaces underscores with spaces in good and area names.
func CleanName(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

// Aggregate builds the latest-wins index from events. Non stock events are
// ignored. For each good and area the stored observation is replaced only by
// a strictly greater iteration, so the first of several equal iterations wins.
func Aggregate(events []model.Event) *Data {
	d := &Data{
		Stocks:           make(map[string]map[string]Observation),
		LatestIterations: make(map[string]int64),
		AreaRegions:      make(map[string]string),
		Goods:            NewSet(),
		Areas:            NewSet(),
		Regions:          NewSet(),
		Categories:       NewSet(),
		ExactReasons:     NewSet(),
	}

	for _, ev := range events {
		st, ok := ev.(*model.AreaStock)
		if !ok {
			continue
		}
		d.add(st)
	}
	return d
}

func (d *Data) add(st *model.AreaStock) {
	if st.Region != "" {
		if cur, ok := d.LatestIterations[st.Region]; !ok || st.Iteration > cur {
			d.LatestIterations[st.Region] = st.Iteration
		}
	}

	good := CleanName(st.GoodName)
	area := CleanName(st.AreaName)
	region := st.Region
	if region == "" {
		region = UnknownRegion
	}

	d.Goods.Add(good)
	d.Areas.Add(area)
	d.Regions.Add(region)
	if _, ok := d.AreaRegions[area]; !ok {
		d.AreaRegions[area] = region
	}
	for _, r := range st.Reasons {
		d.ExactReasons.Add(r)
		if c, ok := Category(r); ok {
			d.Categories.Add(c)
		}
	}

	areas := d.Stocks[good]
	if areas == nil {
		areas = make(map[string]Observation)
		d.Stocks[good] = areas
	}
	if cur, ok := areas[area]; ok && st.Iteration <= cur.Iteration {
		return
	}
	areas[area] = Observation{
		Stock:       st.Stock,
		Request:     st.Request,
		InFlightIn:  st.InFlightIn,
		InFlightOut: st.InFlightOut,
		Iteration:   st.Iteration,
		Timestamp:   st.Timestamp,
		Region:      region,
		Reasons:     st.Reasons,
	}
}

// Lookup returns the observation for good at area.
func (d *Data) Lookup(good, area string) (Observation, bool) {
	obs, ok := d.Stocks[good][area]
	return obs, ok
}

// Latest returns the watermark of region; regions without one report false.
func (d *Data) Latest(region string) (int64, bool) {
	it, ok := d.LatestIterations[region]
	return it, ok
}

// IsOutdated reports whether obs is older than its region's watermark.
func (d *Data) IsOutdated(obs Observation) bool {
	latest, ok := d.Latest(obs.Region)
	return ok && obs.Iteration < latest
}

// GoodReasons returns the sorted union of every reason recorded for good.
func (d *Data) GoodReasons(good string) []string {
	all := NewSet()
	for _, obs := range d.Stocks[good] {
		for _, r := range obs.Reasons {
			all.Add(r)
		}
	}
	return all.Sorted()
}

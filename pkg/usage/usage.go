// Package usage derives ship usage series from base-log events: per iteration
// and region, how many automation ships were available and how many trade
// tasks were spawned, kept separately for regular and hub trading.
package usage

import (
	"sort"
	"time"

	"github.com/routelens/routelens/internal/model"
)

const unknownRegion = "unknown"

// Entry is one iteration of one region.
type Entry struct {
	Timestamp      time.Time `json:"timestamp"`
	Iteration      int64     `json:"iteration"`
	Region         string    `json:"region"`
	ShipsAvailable int64     `json:"shipsAvailable"`
	TasksSpawned   int64     `json:"tasksSpawned"`
}

// Series holds the entries of both trade modes, each sorted by timestamp.
type Series struct {
	Regular []Entry `json:"regular"`
	Hub     []Entry `json:"hub"`
}

type key struct {
	iteration int64
	region    string
}

type partial struct {
	entry    Entry
	hasShips bool
	hasTasks bool
}

// collector joins ship counts and spawned tasks that share an iteration and
// region, remembering first-seen order.
type collector struct {
	order []key
	byKey map[key]*partial
}

func newCollector() *collector {
	return &collector{byKey: make(map[key]*partial)}
}

func (c *collector) get(base *model.Base, iteration int64) *partial {
	region := base.Region
	if region == "" {
		region = unknownRegion
	}
	k := key{iteration, region}
	p, ok := c.byKey[k]
	if !ok {
		p = &partial{entry: Entry{Timestamp: base.Timestamp, Iteration: iteration, Region: region}}
		c.byKey[k] = p
		c.order = append(c.order, k)
	}
	return p
}

func (c *collector) entries() []Entry {
	out := make([]Entry, 0, len(c.order))
	for _, k := range c.order {
		p := c.byKey[k]
		if p.hasShips || p.hasTasks {
			out = append(out, p.entry)
		}
	}
	sortByTime(out)
	return out
}

// FromEvents builds the series of one log. Only available ship counts that
// carry an iteration contribute ships; lines without type=hub count as regular.
func FromEvents(events []model.Event) Series {
	regular, hub := newCollector(), newCollector()
	pick := func(t model.TradeType) *collector {
		if t == model.TradeHub {
			return hub
		}
		return regular
	}

	for _, ev := range events {
		switch e := ev.(type) {
		case *model.ShipCount:
			if e.Iteration == 0 || e.CountType != model.ShipAvailable {
				continue
			}
			p := pick(e.TradeType).get(&e.Base, e.Iteration)
			p.entry.ShipsAvailable = e.Count
			p.hasShips = true
		case *model.TasksSpawned:
			p := pick(e.TradeType).get(&e.Base, e.Iteration)
			p.entry.TasksSpawned = e.TasksSpawned
			p.hasTasks = true
		}
	}

	return Series{Regular: regular.entries(), Hub: hub.entries()}
}

// Merge concatenates series from several logs and re-sorts them by time.
func Merge(series ...Series) Series {
	var out Series
	for _, s := range series {
		out.Regular = append(out.Regular, s.Regular...)
		out.Hub = append(out.Hub, s.Hub...)
	}
	sortByTime(out.Regular)
	sortByTime(out.Hub)
	return out
}

func sortByTime(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}

// Ships returns the available ship counts of entries.
func Ships(entries []Entry) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = float64(e.ShipsAvailable)
	}
	return out
}

// Tasks returns the spawned task counts of entries.
func Tasks(entries []Entry) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = float64(e.TasksSpawned)
	}
	return out
}

// MovingAverage smooths values with a window centred on each point; the
// window shrinks at the edges. A non-positive window returns values unchanged.
func MovingAverage(values []float64, window int) []float64 {
	if len(values) == 0 || window <= 0 {
		return values
	}
	half := window / 2
	out := make([]float64, len(values))
	for i := range values {
		start := max(0, i-half)
		end := min(len(values), i+half+1)
		var sum float64
		for _, v := range values[start:end] {
			sum += v
		}
		out[i] = sum / float64(end-start)
	}
	return out
}

// Stats summarises a series.
type Stats struct {
	AvgShips float64 `json:"avgShips"`
	AvgTasks float64 `json:"avgTasks"`
	Count    int     `json:"count"`
}

// Summarize averages ships and tasks over entries.
func Summarize(entries []Entry) Stats {
	if len(entries) == 0 {
		return Stats{}
	}
	var ships, tasks int64
	for _, e := range entries {
		ships += e.ShipsAvailable
		tasks += e.TasksSpawned
	}
	n := float64(len(entries))
	return Stats{
		AvgShips: float64(ships) / n,
		AvgTasks: float64(tasks) / n,
		Count:    len(entries),
	}
}

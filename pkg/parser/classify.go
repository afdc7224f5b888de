package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/routelens/routelens/internal/model"
)

// Line shapes, in the order the classifier tries them.
// Examples:
//
//	2025-12-11T21:46:02Z type=regular iteration=20251211214602 loc=Trade.Loop region=NW Area n1_(h) (id=8323) Ponchos stock=301 (+0) (-150) request=90
//	2025-12-09T22:16:09Z region=NW loc=Trade.Loop type=hub iteration=1765311369 trade route automation ship -> available : oid=12884901972 name=1-sY-tH-2af route=TRA_NW isMoving=false hasCargo=false
//	2025-12-09T22:16:09Z region=NW loc=Trade.Loop type=hub iteration=1765311369 Total available trade route automation ships: 4
//	2025-12-09T22:16:09Z region=NW loc=Trade.Loop type=regular iteration=1765311369 Spawned 0 async tasks for trade route execution.
//	2025-12-09T22:16:09Z region=NW loc=Trade.Loop type=regular iteration=1765311369 Still available ships: 4, still existing requests: 11
//	2025-12-09T22:06:21Z region=OW loc=Trade.Loop type=regular iteration=1765310781 start at 2025-12-09 22:06:21 time
var (
	areaStockPattern = regexp.MustCompile(
		`type=(regular|hub)\s+iteration=(\d+)\s+.*?Area\s+(.+?)\s+\(id=(\d+)\)\s+(.+?)\s+stock=(\d+)\s+\(([+-]?\d+)\)\s+\(([+-]?\d+)\)\s+request=([\d.]+)`)
	reasonsPattern = regexp.MustCompile(`\(reasons=\[([^\]]*)\]\)`)

	shipStatusPattern = regexp.MustCompile(
		`trade route automation ship -> (available|stillMoving)\s*:\s*oid=(\d+)\s+name=(.+?)\s+route=(\S+)\s+isMoving=(true|false)\s+hasCargo=(true|false)`)
	shipCountPattern = regexp.MustCompile(`Total (available|still moving) trade route automation ships:\s*(\d+)`)

	tasksSpawnedPattern   = regexp.MustCompile(`Spawned\s+(\d+)\s+async tasks`)
	stillAvailablePattern = regexp.MustCompile(`Still available ships:\s*(\d+),\s*still existing requests:\s*(\d+)`)
)

// matchFunc returns nil when the line does not have its shape.
type matchFunc func(line string, base model.Base) model.Event

// Classifier turns single log lines into typed events. It holds no state
// between lines and is safe for concurrent use.
type Classifier struct {
	loc      *time.Location
	matchers []matchFunc
}

// NewClassifier creates a classifier that reads timestamps in loc
// (time.Local when nil).
func NewClassifier(loc *time.Location) *Classifier {
	if loc == nil {
		loc = time.Local
	}
	return &Classifier{
		loc: loc,
		matchers: []matchFunc{
			matchAreaStock,
			matchShipStatus,
			matchShipCount,
			matchTasksSpawned,
			matchStillAvailable,
			matchTradeSpawn,
			matchTradeExecution,
			matchIterationStart,
		},
	}
}

var defaultClassifier = NewClassifier(nil)

// ParseLine classifies one line using local time for timestamps.
func ParseLine(line string) model.Event {
	return defaultClassifier.Classify(line)
}

// Classify returns the first matching event shape, or a Generic event.
// It never fails.
func (c *Classifier) Classify(line string) model.Event {
	base := ExtractBase(line, c.loc)
	if strings.TrimSpace(line) == "" {
		return &model.Generic{Base: base}
	}
	for _, match := range c.matchers {
		if ev := match(line, base); ev != nil {
			return ev
		}
	}
	return &model.Generic{Base: base}
}

func matchAreaStock(line string, base model.Base) model.Event {
	if !strings.Contains(line, "Area") || !strings.Contains(line, "stock=") || !strings.Contains(line, "request=") {
		return nil
	}
	m := areaStockPattern.FindStringSubmatch(line)
	if m == nil {
		return nil
	}

	tradeType, _ := model.ParseTradeType(m[1])
	iteration, ok1 := parseInt(m[2])
	areaID, ok2 := parseInt(m[4])
	stock, ok3 := parseInt(m[6])
	inFlightIn, ok4 := parseInt(m[7])
	inFlightOut, ok5 := parseInt(m[8])
	request, ok6 := parseFloat(m[9])
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return nil
	}

	return &model.AreaStock{
		Base:        base,
		TradeType:   tradeType,
		Iteration:   iteration,
		AreaName:    m[3],
		AreaID:      areaID,
		GoodName:    m[5],
		Stock:       stock,
		InFlightIn:  inFlightIn,
		InFlightOut: inFlightOut,
		Request:     request,
		Reasons:     parseReasons(line),
	}
}

// parseReasons returns nil when the line has no reasons list and an empty
// slice for "(reasons=[])". Entries are split on commas; reason names are
// assumed to contain none.
func parseReasons(line string) []string {
	m := reasonsPattern.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	reasons := []string{}
	if m[1] == "" {
		return reasons
	}
	for _, r := range strings.Split(m[1], ",") {
		if r = strings.TrimSpace(r); r != "" {
			reasons = append(reasons, r)
		}
	}
	return reasons
}

func matchShipStatus(line string, base model.Base) model.Event {
	if !strings.Contains(line, "trade route automation ship -> ") {
		return nil
	}
	m := shipStatusPattern.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	oid, ok := parseInt(m[2])
	if !ok {
		return nil
	}

	status := model.ShipAvailable
	if m[1] == "stillMoving" {
		status = model.ShipStillMoving
	}
	tradeType, iteration := optionalTradeInfo(line)

	return &model.ShipStatus{
		Base:      base,
		TradeType: tradeType,
		Iteration: iteration,
		Status:    status,
		OID:       oid,
		ShipName:  ShipBaseName(m[3]),
		Route:     m[4],
		IsMoving:  m[5] == "true",
		HasCargo:  m[6] == "true",
	}
}

func matchShipCount(line string, base model.Base) model.Event {
	if !strings.Contains(line, "trade route automation ships:") {
		return nil
	}
	m := shipCountPattern.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	count, ok := parseInt(m[2])
	if !ok {
		return nil
	}

	countType := model.ShipAvailable
	if m[1] == "still moving" {
		countType = model.ShipStillMoving
	}
	tradeType, iteration := optionalTradeInfo(line)

	return &model.ShipCount{
		Base:      base,
		TradeType: tradeType,
		Iteration: iteration,
		CountType: countType,
		Count:     count,
	}
}

// requiredTradeInfo reads the mandatory type= and iteration= fields.
func requiredTradeInfo(fields Fields) (model.TradeType, int64, bool) {
	tradeType, ok := fields.TradeType()
	if !ok {
		return model.TradeUnknown, 0, false
	}
	iteration, ok := fields.Int("iteration")
	if !ok {
		return model.TradeUnknown, 0, false
	}
	return tradeType, iteration, true
}

func matchTasksSpawned(line string, base model.Base) model.Event {
	if !strings.Contains(line, "async tasks for trade route execution") {
		return nil
	}
	m := tasksSpawnedPattern.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	tradeType, iteration, ok := requiredTradeInfo(ScanFields(line))
	if !ok {
		return nil
	}
	tasks, ok := parseInt(m[1])
	if !ok {
		return nil
	}
	return &model.TasksSpawned{
		Base:         base,
		TradeType:    tradeType,
		Iteration:    iteration,
		TasksSpawned: tasks,
	}
}

func matchStillAvailable(line string, base model.Base) model.Event {
	if !strings.Contains(line, "Still available ships") {
		return nil
	}
	m := stillAvailablePattern.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	tradeType, iteration, ok := requiredTradeInfo(ScanFields(line))
	if !ok {
		return nil
	}
	ships, ok1 := parseInt(m[1])
	requests, ok2 := parseInt(m[2])
	if !ok1 || !ok2 {
		return nil
	}
	return &model.StillAvailable{
		Base:              base,
		TradeType:         tradeType,
		Iteration:         iteration,
		ShipsAvailable:    ships,
		RequestsRemaining: requests,
	}
}

func matchIterationStart(line string, base model.Base) model.Event {
	if !strings.Contains(line, "start at") {
		return nil
	}
	tradeType, iteration, ok := requiredTradeInfo(ScanFields(line))
	if !ok {
		return nil
	}
	return &model.IterationStart{
		Base:      base,
		TradeType: tradeType,
		Iteration: iteration,
	}
}

package parser

import (
	"regexp"
	"strings"

	"github.com/routelens/routelens/internal/model"
)

// Trade order lines carry their fields as order-independent key=value tokens:
//
//	2025-12-09T22:11:46Z type=hub aDst="8706 (c1 (h))" ship="8589938023 (Q1)" iteration=1765311106 good="120008 (Wood)" amount=150 loc=Trade.Loop aSrc="9602 (c2)" region=OW Spawning trade order
//	2025-12-09T22:12:22Z type=hub aDst="8706 (c1 (h))" ship="8589938023 (Q1)" iteration=1765311106 good="120008 (Wood)" region=OW loc=TradeExecutor._ExecuteTradeOrderWithShip aSrc="9602 (c2)" amount=150 Loaded 150 total units; area src: 494 -> 344; moving to dst area (x=523 y=1578)
const (
	tradeSpawnMarker    = "Spawning trade order"
	tradeExecutorMarker = "TradeExecutor._ExecuteTradeOrderWithShip"
)

var (
	beforePattern    = regexp.MustCompile(`before: source = (\d+), destination = (\d+)`)
	commaXYPattern   = regexp.MustCompile(`\(x=(\d+),\s*y=(\d+)\)`)
	spaceXYPattern   = regexp.MustCompile(`\(x=(\d+)\s+y=(\d+)\)`)
	loadedPattern    = regexp.MustCompile(`Loaded (\d+) total units; area src: (\d+) -> (\d+)`)
	completedPattern = regexp.MustCompile(`unloaded=(\d+); src=\((\d+) -> (\d+)\); dst=\((\d+) -> (\d+)\)`)
)

// parseTradeOrder decomposes the fields shared by spawn and execution lines.
// Every field must be present and well formed.
func parseTradeOrder(line string) (model.TradeOrder, bool) {
	fields := ScanFields(line)
	if !fields.Has("type", "iteration", "aSrc", "aDst", "ship", "good", "amount") {
		return model.TradeOrder{}, false
	}
	tradeType, iteration, ok := requiredTradeInfo(fields)
	if !ok {
		return model.TradeOrder{}, false
	}

	src, ok1 := ParseIDName(fields["aSrc"])
	dst, ok2 := ParseIDName(fields["aDst"])
	ship, ok3 := ParseIDName(fields["ship"])
	good, ok4 := ParseIDName(fields["good"])
	amount, ok5 := fields.Int("amount")
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return model.TradeOrder{}, false
	}
	ship.Name = ShipBaseName(ship.Name)

	return model.TradeOrder{
		TradeType: tradeType,
		Iteration: iteration,
		AreaSrc:   src,
		AreaDst:   dst,
		Ship:      ship,
		Good:      good,
		Amount:    amount,
	}, true
}

func matchTradeSpawn(line string, base model.Base) model.Event {
	if !strings.Contains(line, tradeSpawnMarker) {
		return nil
	}
	order, ok := parseTradeOrder(line)
	if !ok {
		return nil
	}
	return &model.TradeSpawn{Base: base, TradeOrder: order}
}

// stageRule recognises one execution stage. extract returns false when the
// marker is present but its values are not.
type stageRule struct {
	stage   model.Stage
	marker  func(line string) bool
	extract func(line string, data *model.StageData) bool
}

func contains(subs ...string) func(string) bool {
	return func(line string) bool {
		for _, s := range subs {
			if !strings.Contains(line, s) {
				return false
			}
		}
		return true
	}
}

func noData(string, *model.StageData) bool { return true }

// stageRules are checked in order; the first rule whose marker is present
// decides the stage. If its values do not extract the line is not a trade
// execution at all.
var stageRules = []stageRule{
	{model.StageStart, contains(" start"), noData},
	{model.StageBefore, contains("before: source =", "destination ="), extractBefore},
	{model.StageMovingToSource, contains("Moving ship", "to source area"), extractCommaXY},
	{model.StageArrivedSource, contains("arrived at source area"), noData},
	{model.StageLoaded, contains("Loaded", "total units"), extractLoaded},
	{model.StageArrivedDestination, contains("arrived at destination area"), noData},
	{model.StageCompleted, contains("Trade order completed"), extractCompleted},
}

func matchTradeExecution(line string, base model.Base) model.Event {
	if !strings.Contains(line, tradeExecutorMarker) {
		return nil
	}
	order, ok := parseTradeOrder(line)
	if !ok {
		return nil
	}
	for _, rule := range stageRules {
		if !rule.marker(line) {
			continue
		}
		var data model.StageData
		if !rule.extract(line, &data) {
			return nil
		}
		return &model.TradeExecution{
			Base:       base,
			TradeOrder: order,
			Stage:      rule.stage,
			Data:       data,
		}
	}
	return nil
}

// ints parses every capture group of a submatch; nil input reports false.
func ints(m []string) ([]int64, bool) {
	if len(m) < 2 {
		return nil, false
	}
	out := make([]int64, len(m)-1)
	for i, s := range m[1:] {
		v, ok := parseInt(s)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func extractBefore(line string, data *model.StageData) bool {
	v, ok := ints(beforePattern.FindStringSubmatch(line))
	if !ok {
		return false
	}
	data.SourceStock, data.DestinationStock = &v[0], &v[1]
	return true
}

// extractCommaXY reads optional "(x=1, y=2)" coordinates.
func extractCommaXY(line string, data *model.StageData) bool {
	if m := commaXYPattern.FindStringSubmatch(line); m != nil {
		if v, ok := ints(m); ok {
			data.X, data.Y = &v[0], &v[1]
		}
	}
	return true
}

// extractLoaded reads the unit counts and optional "(x=1 y=2)" coordinates.
// The loaded line separates coordinates with a space, unlike the moving line.
func extractLoaded(line string, data *model.StageData) bool {
	m := loadedPattern.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	v, ok := ints(m)
	if !ok {
		return false
	}
	data.Unloaded, data.SrcBefore, data.SrcAfter = &v[0], &v[1], &v[2]

	xy := spaceXYPattern.FindStringSubmatch(line)
	if xy == nil {
		xy = commaXYPattern.FindStringSubmatch(line)
	}
	if xy != nil {
		if c, ok := ints(xy); ok {
			data.X, data.Y = &c[0], &c[1]
		}
	}
	return true
}

func extractCompleted(line string, data *model.StageData) bool {
	v, ok := ints(completedPattern.FindStringSubmatch(line))
	if !ok {
		return false
	}
	data.Unloaded, data.SrcBefore, data.SrcAfter = &v[0], &v[1], &v[2]
	data.DstBefore, data.DstAfter = &v[3], &v[4]
	return true
}

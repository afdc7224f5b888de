// Package model defines the typed log events produced by the base-log parser.
package model

import "time"

// Kind tags the variant of an Event.
type Kind uint8

const (
	KindGeneric Kind = iota
	KindAreaStock
	KindShipStatus
	KindShipCount
	KindTasksSpawned
	KindStillAvailable
	KindTradeSpawn
	KindTradeExecution
	KindIterationStart
)

var kindNames = [...]string{
	KindGeneric:        "generic",
	KindAreaStock:      "area_stock",
	KindShipStatus:     "ship_status",
	KindShipCount:      "ship_count",
	KindTasksSpawned:   "tasks_spawned",
	KindStillAvailable: "still_available",
	KindTradeSpawn:     "trade_spawn",
	KindTradeExecution: "trade_execution",
	KindIterationStart: "iteration_start",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// MarshalText encodes the kind by wire name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind parses a wire name. The second result is false for unknown names.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return KindGeneric, false
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range kindNames {
		out[i] = Kind(i)
	}
	return out
}

// TradeType is the automation mode that produced a line.
// TradeUnknown marks lines that carry no type= token.
type TradeType uint8

const (
	TradeUnknown TradeType = iota
	TradeRegular
	TradeHub
)

// String returns "regular", "hub" or "" for TradeUnknown.
func (t TradeType) String() string {
	switch t {
	case TradeRegular:
		return "regular"
	case TradeHub:
		return "hub"
	default:
		return ""
	}
}

// ParseTradeType accepts only the two literal values used in the logs.
func ParseTradeType(s string) (TradeType, bool) {
	switch s {
	case "regular":
		return TradeRegular, true
	case "hub":
		return TradeHub, true
	default:
		return TradeUnknown, false
	}
}

// MarshalText encodes the trade type by name.
func (t TradeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ShipState is the availability reported by a ship status or count line.
type ShipState uint8

const (
	ShipAvailable ShipState = iota
	ShipStillMoving
)

// String returns "available" or "stillMoving".
func (s ShipState) String() string {
	if s == ShipStillMoving {
		return "stillMoving"
	}
	return "available"
}

// MarshalText encodes the ship state by name.
func (s ShipState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stage is the step of a trade order reported by the trade executor.
type Stage uint8

const (
	StageStart Stage = iota
	StageBefore
	StageMovingToSource
	StageArrivedSource
	StageLoaded
	StageMovingToDestination
	StageArrivedDestination
	StageCompleted
)

var stageNames = [...]string{
	StageStart:               "start",
	StageBefore:              "before",
	StageMovingToSource:      "moving_to_source",
	StageArrivedSource:       "arrived_source",
	StageLoaded:              "loaded",
	StageMovingToDestination: "moving_to_destination",
	StageArrivedDestination:  "arrived_destination",
	StageCompleted:           "completed",
}

// String returns the wire name of the stage.
func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is one classified log line. Every variant embeds Base.
type Event interface {
	Kind() Kind
	Common() *Base
}

// Base holds the fields every line carries.
type Base struct {
	// Raw is the unmodified source line.
	Raw string `json:"raw"`

	// Timestamp is only meaningful when Timed is set.
	Timestamp time.Time `json:"timestamp"`
	Timed     bool      `json:"-"`

	Region string `json:"region,omitempty"`
	Loc    string `json:"loc,omitempty"`
}

// Common returns the shared fields.
func (b *Base) Common() *Base { return b }

// HasTimestamp reports whether a leading timestamp was parsed.
func (b *Base) HasTimestamp() bool { return b.Timed }

// IDName is a composite "12345 (Some Name)" token.
type IDName struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Generic is the catch-all for lines no matcher recognised.
type Generic struct {
	Base
}

func (*Generic) Kind() Kind { return KindGeneric }

// AreaStock is a per-iteration stock/request observation for one good at one area.
type AreaStock struct {
	Base
	TradeType TradeType `json:"tradeType"`
	Iteration int64     `json:"iteration"`
	AreaName  string    `json:"areaName"`
	AreaID    int64     `json:"areaId"`
	GoodName  string    `json:"goodName"`
	Stock     int64     `json:"stock"`
	// InFlightIn is stock expected to arrive soon.
	InFlightIn int64 `json:"inFlightIn"`
	// InFlightOut is stock about to leave; logged as a non-positive delta.
	InFlightOut int64   `json:"inFlightOut"`
	Request     float64 `json:"request"`
	// Reasons is nil when the line had no reasons list.
	Reasons []string `json:"reasons,omitempty"`
}

func (*AreaStock) Kind() Kind { return KindAreaStock }

// ShipStatus reports the state of one automation ship.
type ShipStatus struct {
	Base
	TradeType TradeType `json:"tradeType,omitempty"`
	// Iteration is zero when the line carries no iteration= token.
	Iteration int64     `json:"iteration,omitempty"`
	Status    ShipState `json:"status"`
	OID       int64     `json:"oid"`
	ShipName  string    `json:"shipName"`
	Route     string    `json:"route"`
	IsMoving  bool      `json:"isMoving"`
	HasCargo  bool      `json:"hasCargo"`
}

func (*ShipStatus) Kind() Kind { return KindShipStatus }

// ShipCount is a summary count of available or still moving ships.
type ShipCount struct {
	Base
	TradeType TradeType `json:"tradeType,omitempty"`
	Iteration int64     `json:"iteration,omitempty"`
	CountType ShipState `json:"countType"`
	Count     int64     `json:"count"`
}

func (*ShipCount) Kind() Kind { return KindShipCount }

// TasksSpawned reports how many trade tasks an iteration started.
type TasksSpawned struct {
	Base
	TradeType    TradeType `json:"tradeType"`
	Iteration    int64     `json:"iteration"`
	TasksSpawned int64     `json:"tasksSpawned"`
}

func (*TasksSpawned) Kind() Kind { return KindTasksSpawned }

// StillAvailable reports leftover ships and requests after an iteration.
type StillAvailable struct {
	Base
	TradeType         TradeType `json:"tradeType"`
	Iteration         int64     `json:"iteration"`
	ShipsAvailable    int64     `json:"shipsAvailable"`
	RequestsRemaining int64     `json:"requestsRemaining"`
}

func (*StillAvailable) Kind() Kind { return KindStillAvailable }

// TradeOrder holds the fields shared by trade spawn and execution lines.
type TradeOrder struct {
	TradeType TradeType `json:"tradeType"`
	Iteration int64     `json:"iteration"`
	AreaSrc   IDName    `json:"areaSrc"`
	AreaDst   IDName    `json:"areaDst"`
	Ship      IDName    `json:"ship"`
	Good      IDName    `json:"good"`
	Amount    int64     `json:"amount"`
}

// TradeSpawn is emitted when a trade order is created.
type TradeSpawn struct {
	Base
	TradeOrder
}

func (*TradeSpawn) Kind() Kind { return KindTradeSpawn }

// StageData carries the stage-specific values of a trade execution line.
// Only the fields relevant to the stage are non-nil.
type StageData struct {
	SourceStock      *int64 `json:"sourceStock,omitempty"`
	DestinationStock *int64 `json:"destinationStock,omitempty"`
	X                *int64 `json:"x,omitempty"`
	Y                *int64 `json:"y,omitempty"`
	Unloaded         *int64 `json:"unloaded,omitempty"`
	SrcBefore        *int64 `json:"srcBefore,omitempty"`
	SrcAfter         *int64 `json:"srcAfter,omitempty"`
	DstBefore        *int64 `json:"dstBefore,omitempty"`
	DstAfter         *int64 `json:"dstAfter,omitempty"`
}

// TradeExecution reports progress of a trade order through its stages.
type TradeExecution struct {
	Base
	TradeOrder
	Stage Stage     `json:"stage"`
	Data  StageData `json:"data"`
}

func (*TradeExecution) Kind() Kind { return KindTradeExecution }

// IterationStart marks the beginning of an automation pass.
type IterationStart struct {
	Base
	TradeType TradeType `json:"tradeType"`
	Iteration int64     `json:"iteration"`
}

func (*IterationStart) Kind() Kind { return KindIterationStart }

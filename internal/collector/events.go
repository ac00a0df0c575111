// Package collector periodically queries the chain client and emits a
// stream of self-describing events that drive strategy re-evaluation
// (spec.md §4.1). Re-architected per spec.md §9 as a closed sum type
// instead of untyped JSON: Event carries exactly one populated variant,
// and JSON serialization is reserved for the boundary where an
// external hint stream enters the process.
package collector

import (
	"encoding/json"
	"fmt"
)

// Kind is the envelope's "type" discriminant (spec.md §6).
type Kind string

const (
	KindBlock                 Kind = "block"
	KindLiquidationEvents     Kind = "liquidation_events"
	KindLiquidationOpportunity Kind = "liquidation_opportunity"
	KindMevHint               Kind = "mev_hint"
	KindHealthCheck           Kind = "health_check"
	KindError                 Kind = "error"
)

// BlockEvent is emitted by the block tick when no liquidation-topic
// logs were found in the scanned window.
type BlockEvent struct {
	BlockNumber uint64 `json:"block_number"`
	Timestamp   int64  `json:"timestamp"`
}

// LiquidationEventsEvent is emitted instead of BlockEvent when the
// lending pool's liquidation-topic logs are non-empty over the scanned
// window.
type LiquidationEventsEvent struct {
	Events uint64 `json:"events"`
	Block  uint64 `json:"block"`
}

// LiquidationOpportunityEvent carries a candidate found by the health
// tick, to be re-validated on-chain by the strategy before acting.
type LiquidationOpportunityEvent struct {
	User                Address `json:"user"`
	CollateralAsset     Address `json:"collateral_asset"`
	DebtAsset           Address `json:"debt_asset"`
	HealthFactor        string  `json:"health_factor"` // decimal string, 1e18-scaled
	TotalCollateral     string  `json:"total_collateral"`
	TotalDebt           string  `json:"total_debt"`
	LiquidationBonusBps uint32  `json:"liquidation_bonus_bps"`
}

// Address is a hex-encoded 20-byte address, the JSON-boundary
// representation of state.Address.
type Address = string

// MevHintEvent is a victim-transaction hint from a private-relay hint
// stream.
type MevHintEvent struct {
	TxHash string         `json:"tx_hash"`
	Hints  map[string]any `json:"hints"`
}

// HealthCheckEvent reports the health tick's own liveness.
type HealthCheckEvent struct {
	MonitoredAssets uint64 `json:"monitored_assets"`
	Timestamp       int64  `json:"timestamp"`
}

// ErrorEvent carries a non-fatal polling failure; the tick continues
// regardless (spec.md §4.1).
type ErrorEvent struct {
	Message string `json:"message"`
}

// Event is the closed sum type Collector.stream() yields. Exactly one
// of the pointer fields is non-nil, matching Kind.
type Event struct {
	Kind Kind

	Block                  *BlockEvent
	LiquidationEvents      *LiquidationEventsEvent
	LiquidationOpportunity *LiquidationOpportunityEvent
	MevHint                *MevHintEvent
	HealthCheck            *HealthCheckEvent
	Error                  *ErrorEvent
}

// MarshalJSON flattens the active variant alongside the type
// discriminant, matching spec.md §6's literal envelope shapes.
func (e Event) MarshalJSON() ([]byte, error) {
	var payload any
	switch e.Kind {
	case KindBlock:
		payload = e.Block
	case KindLiquidationEvents:
		payload = e.LiquidationEvents
	case KindLiquidationOpportunity:
		payload = e.LiquidationOpportunity
	case KindMevHint:
		payload = e.MevHint
	case KindHealthCheck:
		payload = e.HealthCheck
	case KindError:
		payload = e.Error
	default:
		return nil, fmt.Errorf("encode event: unknown kind %q", e.Kind)
	}

	fields, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(fields, &m); err != nil {
		return nil, err
	}
	typeJSON, _ := json.Marshal(string(e.Kind))
	m["type"] = typeJSON

	return json.Marshal(m)
}

// UnmarshalJSON switches on "type" and decodes into the matching
// variant; unknown types decode to a zero-value Event with an empty
// Kind, which callers (and processEvent) silently drop.
func (e *Event) UnmarshalJSON(data []byte) error {
	var disc struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &disc); err != nil {
		return fmt.Errorf("decode event envelope: %w", err)
	}

	switch Kind(disc.Type) {
	case KindBlock:
		var v BlockEvent
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*e = Event{Kind: KindBlock, Block: &v}
	case KindLiquidationEvents:
		var v LiquidationEventsEvent
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*e = Event{Kind: KindLiquidationEvents, LiquidationEvents: &v}
	case KindLiquidationOpportunity:
		var v LiquidationOpportunityEvent
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*e = Event{Kind: KindLiquidationOpportunity, LiquidationOpportunity: &v}
	case KindMevHint:
		var v MevHintEvent
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*e = Event{Kind: KindMevHint, MevHint: &v}
	case KindHealthCheck:
		var v HealthCheckEvent
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*e = Event{Kind: KindHealthCheck, HealthCheck: &v}
	case KindError:
		var v ErrorEvent
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*e = Event{Kind: KindError, Error: &v}
	default:
		*e = Event{}
	}
	return nil
}

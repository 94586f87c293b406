package positions

import "fmt"

// TradeStatus tags the lifecycle variant of a trade.
type TradeStatus uint8

const (
	TradeUninitialized TradeStatus = iota
	TradeActive
	TradeCancelled
)

func (s TradeStatus) String() string {
	switch s {
	case TradeUninitialized:
		return "UNINITIALIZED"
	case TradeActive:
		return "ACTIVE"
	case TradeCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("TradeStatus(%d)", uint8(s))
	}
}

func ParseTradeStatus(s string) (TradeStatus, error) {
	switch s {
	case "UNINITIALIZED":
		return TradeUninitialized, nil
	case "ACTIVE":
		return TradeActive, nil
	case "CANCELLED":
		return TradeCancelled, nil
	default:
		return 0, fmt.Errorf("invalid trade status: %s", s)
	}
}

// TradeState is the derived state of one trade. The zero value for a trade id
// is the Uninitialized variant. Active carries the version and effect of the
// latest accepted transaction; Cancelled keeps its version with a zero effect.
type TradeState struct {
	TradeID      int64       `json:"tradeId"`
	Status       TradeStatus `json:"status"`
	Version      int64       `json:"version"`
	SecurityCode string      `json:"securityCode"`
	Effect       int64       `json:"effect"`
}

// Apply returns the state produced by accepting c on top of s. c must be
// normalized. s is left untouched when an error is returned.
func (s TradeState) Apply(c Candidate) (TradeState, error) {
	switch c.Action {
	case ActionInsert:
		if s.Status != TradeUninitialized {
			return s, fmt.Errorf("%w: trade %d is at version %d", ErrDuplicateInsert, c.TradeID, s.Version)
		}
		return TradeState{
			TradeID:      c.TradeID,
			Status:       TradeActive,
			Version:      1,
			SecurityCode: c.SecurityCode,
			Effect:       c.Quantity * c.BuySell.Sign(),
		}, nil
	case ActionUpdate, ActionCancel:
		switch s.Status {
		case TradeUninitialized:
			return s, fmt.Errorf("%w: trade %d", ErrUnknownTrade, c.TradeID)
		case TradeCancelled:
			return s, fmt.Errorf("%w: trade %d was cancelled at version %d", ErrTradeCancelled, c.TradeID, s.Version)
		case TradeActive:
		default:
			return s, fmt.Errorf("trade %d has unknown status %s", c.TradeID, s.Status)
		}
		if c.Action == ActionCancel {
			return TradeState{
				TradeID:      s.TradeID,
				Status:       TradeCancelled,
				Version:      s.Version + 1,
				SecurityCode: s.SecurityCode,
			}, nil
		}
		return TradeState{
			TradeID:      s.TradeID,
			Status:       TradeActive,
			Version:      s.Version + 1,
			SecurityCode: c.SecurityCode,
			Effect:       c.Quantity * c.BuySell.Sign(),
		}, nil
	default:
		return s, fmt.Errorf("%w: invalid action %q", ErrValidation, c.Action)
	}
}

// Delta is a change to apply to one security's net quantity.
type Delta struct {
	SecurityCode string
	Quantity     int64
}

// Deltas lists the position changes implied by moving a trade from prev to
// next. It returns one entry, or two when an update moved the trade to a
// different security.
func Deltas(prev, next TradeState) []Delta {
	if prev.Status == TradeUninitialized || prev.SecurityCode == next.SecurityCode {
		return []Delta{{SecurityCode: next.SecurityCode, Quantity: next.Effect - prev.Effect}}
	}
	return []Delta{
		{SecurityCode: prev.SecurityCode, Quantity: -prev.Effect},
		{SecurityCode: next.SecurityCode, Quantity: next.Effect},
	}
}

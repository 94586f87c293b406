package positions

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxSecurityCodeLen matches the width of the security_code columns.
const MaxSecurityCodeLen = 32

// BuySell is the trade direction. It fixes the sign of the trade effect.
type BuySell string

const (
	Buy  BuySell = "Buy"
	Sell BuySell = "Sell"
)

func (b BuySell) String() string {
	return string(b)
}

func (b BuySell) IsValid() bool {
	switch b {
	case Buy, Sell:
		return true
	default:
		return false
	}
}

// Sign returns +1 for Buy and -1 for Sell.
func (b BuySell) Sign() int64 {
	if b == Sell {
		return -1
	}
	return 1
}

func NewBuySell(s string) (BuySell, error) {
	b := BuySell(s)
	if !b.IsValid() {
		return "", fmt.Errorf("%w: invalid buySell %q", ErrValidation, s)
	}
	return b, nil
}

// Action governs how a transaction supersedes the prior state of its trade.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionCancel Action = "CANCEL"
)

func (a Action) String() string {
	return string(a)
}

func (a Action) IsValid() bool {
	switch a {
	case ActionInsert, ActionUpdate, ActionCancel:
		return true
	default:
		return false
	}
}

func NewAction(s string) (Action, error) {
	a := Action(s)
	if !a.IsValid() {
		return "", fmt.Errorf("%w: invalid action %q", ErrValidation, s)
	}
	return a, nil
}

// Candidate is a transaction as submitted by a caller, before the engine
// assigns its version and the ledger assigns its id and timestamp.
type Candidate struct {
	TradeID      int64   `json:"tradeId"`
	SecurityCode string  `json:"securityCode"`
	Quantity     int64   `json:"quantity"`
	BuySell      BuySell `json:"buySell"`
	Action       Action  `json:"action"`
}

// Normalize upper-cases the security code and validates every field.
// CANCEL candidates are validated like the others: their quantity and
// direction do not move positions but are kept in the audit record.
func (c Candidate) Normalize() (Candidate, error) {
	c.SecurityCode = NormalizeSecurityCode(c.SecurityCode)
	switch {
	case c.TradeID <= 0:
		return Candidate{}, fmt.Errorf("%w: tradeId must be positive", ErrValidation)
	case c.SecurityCode == "":
		return Candidate{}, fmt.Errorf("%w: securityCode is required", ErrValidation)
	case utf8.RuneCountInString(c.SecurityCode) > MaxSecurityCodeLen:
		return Candidate{}, fmt.Errorf("%w: securityCode longer than %d characters", ErrValidation, MaxSecurityCodeLen)
	case c.Quantity <= 0:
		return Candidate{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	case !c.BuySell.IsValid():
		return Candidate{}, fmt.Errorf("%w: invalid buySell %q", ErrValidation, c.BuySell)
	case !c.Action.IsValid():
		return Candidate{}, fmt.Errorf("%w: invalid action %q", ErrValidation, c.Action)
	}
	return c, nil
}

// NormalizeSecurityCode trims and upper-cases a security code.
func NormalizeSecurityCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Transaction is one accepted, immutable event in a trade's history.
type Transaction struct {
	TransactionID int64     `json:"transactionId"`
	TradeID       int64     `json:"tradeId"`
	Version       int64     `json:"version"`
	SecurityCode  string    `json:"securityCode"`
	Quantity      int64     `json:"quantity"`
	BuySell       BuySell   `json:"buySell"`
	Action        Action    `json:"action"`
	Timestamp     time.Time `json:"timestamp"`
}

// Candidate strips the ledger-assigned fields.
func (t Transaction) Candidate() Candidate {
	return Candidate{
		TradeID:      t.TradeID,
		SecurityCode: t.SecurityCode,
		Quantity:     t.Quantity,
		BuySell:      t.BuySell,
		Action:       t.Action,
	}
}

// Effect is the signed quantity this transaction contributes once it is the
// latest version of its trade.
func (t Transaction) Effect() int64 {
	if t.Action == ActionCancel {
		return 0
	}
	return t.Quantity * t.BuySell.Sign()
}

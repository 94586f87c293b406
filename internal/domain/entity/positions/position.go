package positions

import (
	"fmt"
	"sort"
	"time"
)

// Position is the net signed quantity held in one security.
type Position struct {
	SecurityCode string `json:"securityCode"`
	Quantity     int64  `json:"quantity"`
}

// SortedPositions flattens a position mapping ordered by security code.
func SortedPositions(m map[string]int64) []Position {
	out := make([]Position, 0, len(m))
	for code, qty := range m {
		out = append(out, Position{SecurityCode: code, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SecurityCode < out[j].SecurityCode
	})
	return out
}

// Snapshot captures the aggregate state as of LastTransactionID.
type Snapshot struct {
	LastTransactionID int64            `json:"lastTransactionId"`
	TakenAt           time.Time        `json:"takenAt"`
	Trades            []TradeState     `json:"trades"`
	Positions         map[string]int64 `json:"positions"`
}

// Replay folds txs onto trades and positions in transaction id order. Every
// transaction must carry exactly the version its trade state expects.
func Replay(trades map[int64]TradeState, positions map[string]int64, txs []Transaction) error {
	ordered := make([]Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TransactionID < ordered[j].TransactionID
	})

	for _, tx := range ordered {
		prev := trades[tx.TradeID]
		next, err := prev.Apply(tx.Candidate())
		if err != nil {
			return fmt.Errorf("replay transaction %d: %w", tx.TransactionID, err)
		}
		if next.Version != tx.Version {
			return fmt.Errorf("replay transaction %d: trade %d expected version %d, got %d",
				tx.TransactionID, tx.TradeID, next.Version, tx.Version)
		}
		for _, d := range Deltas(prev, next) {
			positions[d.SecurityCode] += d.Quantity
		}
		trades[tx.TradeID] = next
	}
	return nil
}

// Rebuild derives positions from scratch out of a full history.
func Rebuild(txs []Transaction) (map[string]int64, error) {
	positions := make(map[string]int64)
	if err := Replay(make(map[int64]TradeState), positions, txs); err != nil {
		return nil, err
	}
	return positions, nil
}

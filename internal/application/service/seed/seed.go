package seed

import (
	"context"
	"fmt"

	domain "github.com/shirish73/equityms/internal/domain/entity/positions"
)

// Submitter accepts one candidate transaction at a time.
type Submitter interface {
	Submit(ctx context.Context, candidate domain.Candidate) (domain.Transaction, error)
}

// SampleTransactions returns the deterministic demo sequence. Applied to an
// empty ledger it leaves REL at +60, ITC at 0 and INF at +50.
func SampleTransactions() []domain.Candidate {
	return []domain.Candidate{
		{TradeID: 1, SecurityCode: "REL", Quantity: 50, BuySell: domain.Buy, Action: domain.ActionInsert},
		{TradeID: 2, SecurityCode: "ITC", Quantity: 40, BuySell: domain.Sell, Action: domain.ActionInsert},
		{TradeID: 3, SecurityCode: "INF", Quantity: 70, BuySell: domain.Buy, Action: domain.ActionInsert},
		{TradeID: 1, SecurityCode: "REL", Quantity: 60, BuySell: domain.Buy, Action: domain.ActionUpdate},
		{TradeID: 2, SecurityCode: "ITC", Quantity: 30, BuySell: domain.Buy, Action: domain.ActionCancel},
		{TradeID: 4, SecurityCode: "INF", Quantity: 20, BuySell: domain.Sell, Action: domain.ActionInsert},
	}
}

// Load submits the sample sequence in order and stops at the first rejection.
// Transactions accepted before the failure are returned with the error.
func Load(ctx context.Context, s Submitter) ([]domain.Transaction, error) {
	samples := SampleTransactions()
	accepted := make([]domain.Transaction, 0, len(samples))
	for i, c := range samples {
		tx, err := s.Submit(ctx, c)
		if err != nil {
			return accepted, fmt.Errorf("sample %d (trade %d %s): %w", i+1, c.TradeID, c.Action, err)
		}
		accepted = append(accepted, tx)
	}
	return accepted, nil
}

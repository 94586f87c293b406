package broker

import domain "github.com/shirish73/equityms/internal/domain/entity/positions"

// SubmissionMessage carries one candidate on the submissions exchange.
type SubmissionMessage struct {
	MessageID string            `json:"messageId"`
	Candidate *domain.Candidate `json:"candidate,omitempty"`
}

// TransactionMessage announces an accepted transaction on the events exchange.
type TransactionMessage struct {
	EventID     string             `json:"eventId"`
	Transaction domain.Transaction `json:"transaction"`
}

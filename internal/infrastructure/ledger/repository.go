package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/shirish73/equityms/internal/domain/entity/positions"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation         = "23505"
	dataExceptionClass      = "22"
	integrityViolationClass = "23"
)

// Repository is the PostgreSQL ledger. Transaction ids come from the single
// row of ledger_sequence, bumped inside the append transaction, so a rolled
// back append never leaves a gap.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

const schema = `
	CREATE TABLE IF NOT EXISTS ledger_sequence (
		id      SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		last_id BIGINT NOT NULL,
		last_ts TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS transactions (
		transaction_id BIGINT PRIMARY KEY,
		trade_id       BIGINT NOT NULL,
		version        BIGINT NOT NULL,
		security_code  VARCHAR(32) NOT NULL,
		quantity       BIGINT NOT NULL CHECK (quantity > 0),
		buy_sell       VARCHAR(4) NOT NULL,
		action         VARCHAR(6) NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		UNIQUE (trade_id, version)
	);`

// EnsureSchema creates the ledger tables when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	return nil
}

const nextSequenceQuery = `
	INSERT INTO ledger_sequence (id, last_id, last_ts)
	VALUES (1, 1, clock_timestamp())
	ON CONFLICT (id) DO UPDATE
	SET last_id = ledger_sequence.last_id + 1,
	    last_ts = GREATEST(ledger_sequence.last_ts, clock_timestamp())
	RETURNING last_id, last_ts`

const insertTransactionQuery = `
	INSERT INTO transactions (transaction_id, trade_id, version, security_code, quantity, buy_sell, action, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

func (r *Repository) Append(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	err := r.withTx(ctx, func(dbTx pgx.Tx) error {
		if err := dbTx.QueryRow(ctx, nextSequenceQuery).Scan(&tx.TransactionID, &tx.Timestamp); err != nil {
			return fmt.Errorf("next transaction id: %w", err)
		}
		_, err := dbTx.Exec(ctx, insertTransactionQuery,
			tx.TransactionID,
			tx.TradeID,
			tx.Version,
			tx.SecurityCode,
			tx.Quantity,
			string(tx.BuySell),
			string(tx.Action),
			tx.Timestamp,
		)
		return err
	})
	if err != nil {
		return domain.Transaction{}, appendError(err, tx)
	}
	tx.Timestamp = tx.Timestamp.UTC()
	return tx, nil
}

// appendError classifies a failed append. A duplicate (trade_id, version) is a
// lost race. Data exceptions and other integrity violations reject the row
// for good, so they must not look retryable.
func appendError(err error, tx domain.Transaction) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("append transaction: %w", err)
	}
	switch {
	case pgErr.Code == uniqueViolation:
		return fmt.Errorf("%w: trade %d version %d already stored: %w",
			domain.ErrConcurrentModification, tx.TradeID, tx.Version, err)
	case strings.HasPrefix(pgErr.Code, dataExceptionClass),
		strings.HasPrefix(pgErr.Code, integrityViolationClass):
		return fmt.Errorf("%w: ledger rejected trade %d version %d: %w",
			domain.ErrValidation, tx.TradeID, tx.Version, err)
	default:
		return fmt.Errorf("append transaction: %w", err)
	}
}

func (r *Repository) FindVersion(ctx context.Context, tradeID, version int64) (domain.Transaction, bool, error) {
	row := r.pool.QueryRow(ctx, selectTransactionsQuery+`
		WHERE trade_id = $1 AND version = $2`, tradeID, version)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transaction{}, false, nil
	}
	if err != nil {
		return domain.Transaction{}, false, err
	}
	return tx, true, nil
}

const selectTransactionsQuery = `
	SELECT transaction_id, trade_id, version, security_code, quantity, buy_sell, action, created_at
	FROM transactions`

func (r *Repository) ListAll(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, selectTransactionsQuery+` ORDER BY transaction_id ASC`)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (r *Repository) ListAfter(ctx context.Context, afterID int64, limit int) ([]domain.Transaction, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.pool.Query(ctx, selectTransactionsQuery+`
			WHERE transaction_id > $1
			ORDER BY transaction_id ASC
			LIMIT $2`, afterID, limit)
	} else {
		rows, err = r.pool.Query(ctx, selectTransactionsQuery+`
			WHERE transaction_id > $1
			ORDER BY transaction_id ASC`, afterID)
	}
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (r *Repository) Clear(ctx context.Context) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `TRUNCATE transactions`); err != nil {
			return fmt.Errorf("truncate transactions: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM ledger_sequence`); err != nil {
			return fmt.Errorf("reset ledger sequence: %w", err)
		}
		return nil
	})
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	txs := []domain.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var (
		tx      domain.Transaction
		buySell string
		action  string
	)
	err := row.Scan(
		&tx.TransactionID,
		&tx.TradeID,
		&tx.Version,
		&tx.SecurityCode,
		&tx.Quantity,
		&buySell,
		&action,
		&tx.Timestamp,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx.BuySell = domain.BuySell(buySell)
	tx.Action = domain.Action(action)
	tx.Timestamp = tx.Timestamp.UTC()
	return tx, nil
}

func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

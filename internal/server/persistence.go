package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInsufficientFunds = errors.New("INSUFFICIENT_FUNDS: Balance too low for this stake")

// Ledger is the external wallet collaborator. Debit must be atomic: it
// rejects when the balance is below the amount without any partial write.
type Ledger interface {
	Debit(ctx context.Context, identity string, amount int64) (int64, error)
	Credit(ctx context.Context, identity string, amount int64) (int64, error)
	Balance(ctx context.Context, identity string) (int64, error)
}

// MatchRecord is one finished game for the history table. Winner is empty
// on a draw.
type MatchRecord struct {
	Player1 string
	Player2 string
	Winner  string
	Bet     int64
	Mode    string
	Reason  string
}

// MatchRecorder persists finished games. Fire-and-forget from the caller's
// point of view: failures are logged, never block game flow.
type MatchRecorder interface {
	RecordResult(ctx context.Context, record MatchRecord) error
}

// ============================================================================
// POSTGRES IMPLEMENTATIONS
// ============================================================================

// EnsureSchema creates the wallet and match history tables.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS wallets (
			identity TEXT PRIMARY KEY,
			balance  BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
		);
		CREATE TABLE IF NOT EXISTS matches (
			id        BIGSERIAL PRIMARY KEY,
			player1   TEXT NOT NULL,
			player2   TEXT NOT NULL,
			winner    TEXT,
			bet       BIGINT NOT NULL,
			mode      TEXT NOT NULL,
			reason    TEXT NOT NULL,
			played_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

type PgxLedger struct {
	pool *pgxpool.Pool
}

func NewPgxLedger(pool *pgxpool.Pool) *PgxLedger {
	return &PgxLedger{pool: pool}
}

// Debit performs an atomic conditional decrement: the WHERE clause makes
// concurrent debits race-free against any other balance-affecting write.
func (l *PgxLedger) Debit(ctx context.Context, identity string, amount int64) (int64, error) {
	var balance int64
	err := l.pool.QueryRow(ctx, `
		UPDATE wallets SET balance = balance - $1
		WHERE identity = $2 AND balance >= $1
		RETURNING balance
	`, amount, identity).Scan(&balance)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("failed to debit %s: %w", identity, err)
	}
	return balance, nil
}

func (l *PgxLedger) Credit(ctx context.Context, identity string, amount int64) (int64, error) {
	var balance int64
	err := l.pool.QueryRow(ctx, `
		INSERT INTO wallets (identity, balance) VALUES ($1, $2)
		ON CONFLICT (identity) DO UPDATE SET balance = wallets.balance + $2
		RETURNING balance
	`, identity, amount).Scan(&balance)

	if err != nil {
		return 0, fmt.Errorf("failed to credit %s: %w", identity, err)
	}
	return balance, nil
}

func (l *PgxLedger) Balance(ctx context.Context, identity string) (int64, error) {
	var balance int64
	err := l.pool.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE identity = $1`, identity).Scan(&balance)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance of %s: %w", identity, err)
	}
	return balance, nil
}

type PgxMatchRecorder struct {
	pool *pgxpool.Pool
}

func NewPgxMatchRecorder(pool *pgxpool.Pool) *PgxMatchRecorder {
	return &PgxMatchRecorder{pool: pool}
}

func (r *PgxMatchRecorder) RecordResult(ctx context.Context, record MatchRecord) error {
	var winner *string
	if record.Winner != "" {
		winner = &record.Winner
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO matches (player1, player2, winner, bet, mode, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.Player1, record.Player2, winner, record.Bet, record.Mode, record.Reason)

	if err != nil {
		return fmt.Errorf("failed to record match: %w", err)
	}
	return nil
}

// ============================================================================
// IN-MEMORY IMPLEMENTATIONS
// ============================================================================
// Used in tests and when no database is configured.

type MemoryLedger struct {
	balances map[string]int64
	mu       sync.Mutex
}

func NewMemoryLedger(initial map[string]int64) *MemoryLedger {
	balances := make(map[string]int64, len(initial))
	for identity, balance := range initial {
		balances[identity] = balance
	}
	return &MemoryLedger{balances: balances}
}

func (l *MemoryLedger) Debit(_ context.Context, identity string, amount int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[identity] < amount {
		return 0, ErrInsufficientFunds
	}
	l.balances[identity] -= amount
	return l.balances[identity], nil
}

func (l *MemoryLedger) Credit(_ context.Context, identity string, amount int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[identity] += amount
	return l.balances[identity], nil
}

func (l *MemoryLedger) Balance(_ context.Context, identity string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[identity], nil
}

type MemoryRecorder struct {
	records []MatchRecord
	mu      sync.Mutex
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) RecordResult(_ context.Context, record MatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *MemoryRecorder) Records() []MatchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MatchRecord(nil), r.records...)
}

// recordTimeout bounds the fire-and-forget history write.
const recordTimeout = 5 * time.Second

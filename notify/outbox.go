package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hireflow/agreement"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the outbox needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Outbox appends events to the outbox table for asynchronous delivery.
type Outbox struct {
	db DB
}

func NewOutbox(db DB) *Outbox {
	return &Outbox{db: db}
}

func (o *Outbox) Notify(ctx context.Context, e agreement.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("notify: marshal outbox payload: %w", err)
	}

	const q = `
		INSERT INTO outbox (topic, recipient_user_id, agreement_id, payload)
		VALUES ($1, $2, $3, $4::jsonb)
	`
	if _, err := o.db.Exec(ctx, q, Topic(e), e.RecipientUserID, e.AgreementID, string(payload)); err != nil {
		return fmt.Errorf("notify: insert outbox message: %w", err)
	}
	return nil
}

// Relay forwards undelivered outbox rows to a downstream notifier and marks
// them delivered. Rows are claimed with SKIP LOCKED so several relays can run.
type Relay struct {
	db        DB
	next      agreement.Notifier
	batchSize int
	now       func() time.Time
}

func NewRelay(db DB, next agreement.Notifier) *Relay {
	return &Relay{db: db, next: next, batchSize: 100, now: time.Now}
}

func (r *Relay) WithBatchSize(n int) *Relay {
	if n > 0 {
		r.batchSize = n
	}
	return r
}

// Drain delivers one batch and reports how many rows were delivered. A row
// whose delivery fails stays undelivered and ends the batch.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("notify: begin relay tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const claim = `
		SELECT id, payload
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.Query(ctx, claim, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("notify: claim outbox rows: %w", err)
	}

	type pending struct {
		id    int64
		event agreement.Event
	}
	var batch []pending
	for rows.Next() {
		var (
			p   pending
			raw []byte
		)
		if err := rows.Scan(&p.id, &raw); err != nil {
			rows.Close()
			return 0, fmt.Errorf("notify: scan outbox row: %w", err)
		}
		if err := json.Unmarshal(raw, &p.event); err != nil {
			rows.Close()
			return 0, fmt.Errorf("notify: decode outbox row %d: %w", p.id, err)
		}
		batch = append(batch, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("notify: iterate outbox rows: %w", err)
	}

	delivered := make([]int64, 0, len(batch))
	var deliverErr error
	for _, p := range batch {
		if err := r.next.Notify(ctx, p.event); err != nil {
			deliverErr = fmt.Errorf("notify: relay outbox row %d: %w", p.id, err)
			break
		}
		delivered = append(delivered, p.id)
	}

	if len(delivered) > 0 {
		const mark = `UPDATE outbox SET delivered_at = $2 WHERE id = ANY($1)`
		if _, err := tx.Exec(ctx, mark, delivered, r.now().UTC()); err != nil {
			return 0, fmt.Errorf("notify: mark outbox delivered: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("notify: commit relay tx: %w", err)
	}
	return len(delivered), deliverErr
}

// DefaultRelayInterval is used when Run is given a non-positive interval.
const DefaultRelayInterval = 2 * time.Second

// Run drains the outbox every interval until ctx is done.
func (r *Relay) Run(ctx context.Context, interval time.Duration, onError func(error)) {
	if interval <= 0 {
		interval = DefaultRelayInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for {
			n, err := r.Drain(ctx)
			if err != nil && onError != nil && ctx.Err() == nil {
				onError(err)
			}
			if err != nil || n < r.batchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gpcheckout.org/internal/ledger"
)

// Store is the Postgres-backed ledger. It carries the same semantics as
// ledger.InMemory: newest-first reads, a 1000-record window, and the
// refund-once guard — here backed by a partial unique index plus a lock
// table instead of a mutex.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// refundLockTTL bounds how long an abandoned reservation (process crash
// mid-refund) blocks subsequent attempts.
const refundLockTTL = 5 * time.Minute

// Open connects with the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool (used by tests).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Append(ctx context.Context, rec ledger.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		insert into payments (
			id, order_id, original_order_id, created_at, amount, currency,
			success, result_code, message, auth_code, pasref, channel,
			signature_valid, raw_response, user_id
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		rec.ID, rec.OrderID, nullable(rec.OriginalOrderID), rec.Timestamp,
		rec.Amount, rec.Currency, rec.Success, rec.ResultCode, rec.Message,
		nullable(rec.AuthCode), nullable(rec.PasRef), string(rec.Channel),
		nullableBool(rec.SignatureValid), nullable(rec.RawResponse),
		nullable(rec.UserID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ledger.ErrAlreadyRefunded
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	if rec.Channel == ledger.ChannelRefund && rec.OriginalOrderID != "" {
		if _, err := tx.ExecContext(ctx,
			`delete from refund_locks where order_id = $1`, rec.OriginalOrderID); err != nil {
			return fmt.Errorf("release refund lock: %w", err)
		}
	}

	// Keep only the rolling window.
	if _, err := tx.ExecContext(ctx, `
		delete from payments where id in (
			select id from payments order by created_at desc, id desc offset $1
		)
	`, ledger.MaxRecords); err != nil {
		return fmt.Errorf("trim ledger: %w", err)
	}

	return tx.Commit()
}

func (s *Store) FindByOrderID(ctx context.Context, orderID string) (ledger.Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+`
		where order_id = $1 and channel <> 'refund'
		order by created_at desc, id desc limit 1
	`, orderID)
	return scanRecord(row)
}

func (s *Store) BeginRefund(ctx context.Context, orderID string) (ledger.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Record{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`delete from refund_locks where locked_at < $1`,
		time.Now().UTC().Add(-refundLockTTL)); err != nil {
		return ledger.Record{}, fmt.Errorf("expire refund locks: %w", err)
	}

	row := tx.QueryRowContext(ctx, selectRecord+`
		where order_id = $1 and channel <> 'refund'
		order by created_at desc, id desc limit 1
	`, orderID)
	orig, err := scanRecord(row)
	if err != nil {
		return ledger.Record{}, err
	}
	if !orig.Success {
		return ledger.Record{}, ledger.ErrNotRefundable
	}

	var refunded bool
	err = tx.QueryRowContext(ctx, `
		select exists (
			select 1 from payments
			where channel = 'refund' and success and original_order_id = $1
		)
	`, orderID).Scan(&refunded)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("check refund state: %w", err)
	}
	if refunded {
		return ledger.Record{}, ledger.ErrAlreadyRefunded
	}

	res, err := tx.ExecContext(ctx, `
		insert into refund_locks (order_id, locked_at) values ($1, $2)
		on conflict (order_id) do nothing
	`, orderID, time.Now().UTC())
	if err != nil {
		return ledger.Record{}, fmt.Errorf("reserve refund: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.Record{}, ledger.ErrRefundInFlight
	}

	if err := tx.Commit(); err != nil {
		return ledger.Record{}, err
	}
	return orig, nil
}

func (s *Store) AbortRefund(ctx context.Context, orderID string) {
	_, _ = s.db.ExecContext(ctx, `delete from refund_locks where order_id = $1`, orderID)
}

func (s *Store) ListRecent(ctx context.Context, n int) ([]ledger.Record, error) {
	return s.list(ctx, selectRecord+` order by created_at desc, id desc limit $1`, limit(n))
}

func (s *Store) ListByChannel(ctx context.Context, ch ledger.Channel, n int) ([]ledger.Record, error) {
	return s.list(ctx, selectRecord+`
		where channel = $2 order by created_at desc, id desc limit $1
	`, limit(n), string(ch))
}

func (s *Store) ListByUser(ctx context.Context, userID string, n int) ([]ledger.Record, error) {
	return s.list(ctx, selectRecord+`
		where user_id = $2 order by created_at desc, id desc limit $1
	`, limit(n), userID)
}

func (s *Store) ClearChannel(ctx context.Context, ch ledger.Channel) error {
	_, err := s.db.ExecContext(ctx, `delete from payments where channel = $1`, string(ch))
	return err
}

const selectRecord = `
	select id, order_id, original_order_id, created_at, amount, currency,
	       success, result_code, message, auth_code, pasref, channel,
	       signature_valid, raw_response, user_id
	from payments
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (ledger.Record, error) {
	var (
		rec      ledger.Record
		channel  string
		origID   sql.NullString
		authCode sql.NullString
		pasRef   sql.NullString
		sigValid sql.NullBool
		raw      sql.NullString
		userID   sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.OrderID, &origID, &rec.Timestamp, &rec.Amount,
		&rec.Currency, &rec.Success, &rec.ResultCode, &rec.Message,
		&authCode, &pasRef, &channel, &sigValid, &raw, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Record{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Record{}, err
	}
	rec.OriginalOrderID = origID.String
	rec.AuthCode = authCode.String
	rec.PasRef = pasRef.String
	rec.Channel = ledger.Channel(channel)
	rec.RawResponse = raw.String
	rec.UserID = userID.String
	if sigValid.Valid {
		v := sigValid.Bool
		rec.SignatureValid = &v
	}
	return rec, nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]ledger.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ledger.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func limit(n int) int {
	if n <= 0 || n > ledger.MaxRecords {
		return ledger.MaxRecords
	}
	return n
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

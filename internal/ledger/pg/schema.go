package pg

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema statements are idempotent so cmd/migrate can re-run safely.
var schema = []string{
	`create table if not exists payments (
		id                text primary key,
		order_id          text not null,
		original_order_id text,
		created_at        timestamptz not null,
		amount            double precision not null,
		currency          text not null,
		success           boolean not null,
		result_code       text not null default '',
		message           text not null default '',
		auth_code         text,
		pasref            text,
		channel           text not null,
		signature_valid   boolean,
		raw_response      text,
		user_id           text
	)`,
	`create index if not exists payments_order_id_idx on payments (order_id)`,
	`create index if not exists payments_created_at_idx on payments (created_at desc)`,
	// Refund-once is enforced by the database, not just by the in-flight
	// reservation: a second successful refund for the same original order
	// violates this index.
	`create unique index if not exists payments_refund_once
		on payments (original_order_id)
		where channel = 'refund' and success`,
	`create table if not exists refund_locks (
		order_id  text primary key,
		locked_at timestamptz not null
	)`,
}

// Migrate creates the payments schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

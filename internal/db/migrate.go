package db

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/pb2106/Network-Control/internal/store"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		id         BIGSERIAL PRIMARY KEY,
		mac        TEXT NOT NULL UNIQUE,
		ip         TEXT NOT NULL DEFAULT '',
		hostname   TEXT NOT NULL DEFAULT '',
		role       TEXT NOT NULL DEFAULT 'Other',
		status     TEXT NOT NULL DEFAULT 'active',
		archived   BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS devices_ip_idx ON devices (ip)`,
	`CREATE TABLE IF NOT EXISTS operators (
		id            BIGSERIAL PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'admin',
		last_login    TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS action_log (
		id        BIGSERIAL PRIMARY KEY,
		action    TEXT NOT NULL,
		target_ip TEXT NOT NULL,
		operator  TEXT NOT NULL,
		ts        TIMESTAMPTZ NOT NULL DEFAULT now(),
		success   BOOLEAN NOT NULL,
		detail    TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS action_log_ts_idx ON action_log (ts DESC)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id      BIGSERIAL PRIMARY KEY,
		message TEXT NOT NULL,
		level   TEXT NOT NULL,
		ts      TIMESTAMPTZ NOT NULL DEFAULT now(),
		read    BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS alerts_ts_idx ON alerts (ts DESC)`,
}

// Migrate applies the schema idempotently. The device and action_log tables
// must survive restarts; the sync hub's history buffer does not and has no
// table here.
func (p *Pool) Migrate(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return nil
	}
	for _, stmt := range migrations {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SeedAdmin creates a bootstrap operator account when the operators table is
// empty, so a fresh install can log in at all.
func (p *Pool) SeedAdmin(ctx context.Context, username, password string) error {
	if p == nil || p.pool == nil || username == "" || password == "" {
		return nil
	}
	q := p.Queries()
	n, err := q.CountOperators(ctx)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if n > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	_, err = q.InsertOperator(ctx, store.InsertOperatorParams{
		Username:     username,
		PasswordHash: string(hash),
		Role:         "admin",
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}

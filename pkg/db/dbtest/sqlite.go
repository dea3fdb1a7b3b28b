// Package dbtest opens in-memory sqlite databases that mirror the Postgres
// schema closely enough for repository and service tests.
package dbtest

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE receipts (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		vehicle_id TEXT,
		uploaded_by TEXT,
		image_ref TEXT NOT NULL,
		image_mime TEXT NOT NULL,
		purchase_date DATE NOT NULL,
		station_name TEXT NOT NULL,
		seller_address TEXT,
		seller_city TEXT,
		seller_state TEXT,
		seller_zip TEXT,
		fuel_type TEXT NOT NULL DEFAULT 'gasoline',
		gallons TEXT CHECK (gallons IS NULL OR (CAST(gallons AS REAL) >= 0 AND CAST(gallons AS REAL) < 1e9)),
		price_per_gallon TEXT CHECK (price_per_gallon IS NULL OR (CAST(price_per_gallon AS REAL) >= 0 AND CAST(price_per_gallon AS REAL) < 1e9)),
		total_amount TEXT CHECK (total_amount IS NULL OR (CAST(total_amount AS REAL) >= 0 AND CAST(total_amount AS REAL) < 1e10)),
		processing_status TEXT NOT NULL DEFAULT 'pending',
		processing_error TEXT,
		fiscal_year TEXT NOT NULL,
		quota_fiscal_year TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		completed_at DATETIME
	)`,
	`CREATE TRIGGER trg_receipts_status_forward_only
		BEFORE UPDATE OF processing_status ON receipts
		WHEN NEW.processing_status <> OLD.processing_status
			AND NOT ((OLD.processing_status = 'pending' AND NEW.processing_status = 'processing')
				OR (OLD.processing_status = 'processing' AND NEW.processing_status IN ('completed', 'failed')))
		BEGIN
			SELECT RAISE(ABORT, 'receipt status cannot move backwards');
		END`,
	`CREATE TABLE receipt_jobs (
		id TEXT PRIMARY KEY,
		receipt_id TEXT NOT NULL UNIQUE REFERENCES receipts(id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'queued',
		attempts INTEGER NOT NULL DEFAULT 0,
		available_at DATETIME NOT NULL,
		locked_at DATETIME,
		locked_by TEXT,
		last_error TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE tax_rates (
		id TEXT PRIMARY KEY,
		fuel_type TEXT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE,
		base_rate TEXT NOT NULL,
		increase TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE account_subscriptions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		fiscal_year TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'trial',
		trial_started_at DATETIME NOT NULL,
		trial_ends_at DATETIME NOT NULL,
		receipt_count INTEGER NOT NULL DEFAULT 0,
		receipt_limit INTEGER NOT NULL,
		base_limit INTEGER NOT NULL,
		activated_at DATETIME,
		canceled_at DATETIME,
		last_payment_ref TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT account_subscriptions_account_fy_key UNIQUE (account_id, fiscal_year),
		CHECK (receipt_count <= receipt_limit)
	)`,
	`CREATE TABLE receipt_packs (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		fiscal_year TEXT NOT NULL,
		receipts_added INTEGER NOT NULL,
		price TEXT NOT NULL,
		payment_reference TEXT NOT NULL UNIQUE,
		created_at DATETIME
	)`,
	`CREATE TABLE billing_events (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		account_id TEXT,
		fiscal_year TEXT,
		payload TEXT,
		processed_at DATETIME NOT NULL,
		UNIQUE (provider, provider_event_id)
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns a fresh in-memory database private to the calling test with
// every table created. Timestamps are generated in UTC.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)
	// one connection keeps the shared-cache database alive and serializes writers.
	return open(t, dsn, 1)
}

// OpenConcurrent returns a file-backed database that serves up to conns
// connections at once, for tests where transactions must overlap. Writers
// take the lock at BEGIN and wait on each other through the busy timeout.
func OpenConcurrent(t testing.TB, conns int) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fueltax.db")
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate", path)
	return open(t, dsn, conns)
}

func open(t testing.TB, dsn string, conns int) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// Package db opens the SQLite store that holds reconciliation state.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

const (
	busyTimeoutMs  = "5000"
	defaultReaders = 4
	pingTimeout    = 5 * time.Second
)

// Pools is a single-writer / multi-reader pair over one SQLite file.
type Pools struct {
	Write *sql.DB
	Read  *sql.DB
}

// Open opens the write pool (one connection, immediate transactions) and a
// read pool of up to readers connections. readers <= 0 uses 4.
func Open(ctx context.Context, path string, readers int) (*Pools, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if readers <= 0 {
		readers = defaultReaders
	}

	w, err := openPool(ctx, dsn(path, true), 1)
	if err != nil {
		return nil, fmt.Errorf("open write pool: %w", err)
	}
	r, err := openPool(ctx, dsn(path, false), readers)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("open read pool: %w", err)
	}
	return &Pools{Write: w, Read: r}, nil
}

// Close closes both pools.
func (p *Pools) Close() error {
	return errors.Join(p.Read.Close(), p.Write.Close())
}

func openPool(ctx context.Context, dsn string, conns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func dsn(path string, write bool) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", busyTimeoutMs)
	q.Set("_synchronous", "NORMAL")
	q.Set("_foreign_keys", "on")
	if write {
		q.Set("_txlock", "immediate")
	}
	return path + "?" + q.Encode()
}

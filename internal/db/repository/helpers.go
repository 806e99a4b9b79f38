// Package repository implements domain repositories on SQLite.
package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"agent-bff/internal/domain"
)

const timeLayout = time.RFC3339Nano

func mapDBError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound("%s not found", what)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return domain.ErrConflict("%s already exists", what)
	}
	return err
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

// Package repository persists events and their rosters.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/guildboard/internal/domain/event"
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Store is an event.Store with a lifecycle.
type Store interface {
	event.Store
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*SQLStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Open returns the store selected by driver. dsn is a file path for sqlite
// and a connection string for postgres; it is ignored for memory.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite:
		return OpenSQLite(ctx, dsn)
	case DriverPostgres, "pgx":
		return OpenPostgres(ctx, dsn)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%q: %w", driver, ErrUnsupportedDriver)
	}
}

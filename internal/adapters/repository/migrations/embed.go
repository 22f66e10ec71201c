// Package migrations holds the embedded schema migrations of the event store.
package migrations

import "embed"

// FS contains the goose SQL migrations, applied in version order.
//
//go:embed *.sql
var FS embed.FS

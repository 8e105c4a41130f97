// Package migrations embeds the SQL migrations for the postgres backend.
package migrations

import "embed"

// Files holds the goose migration files applied at startup.
//
//go:embed *.sql
var Files embed.FS

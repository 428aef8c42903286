// Package migrations embeds the SQL migrations for the inventario store.
package migrations

import "embed"

// FS holds the golang-migrate up/down files.
//
//go:embed *.sql
var FS embed.FS

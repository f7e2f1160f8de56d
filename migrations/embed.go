// Package migrations embeds the SQL migrations of the driver's local
// database so the binary carries its own schema.
package migrations

import "embed"

// FS holds every *.sql migration at its root. Load it with
// database.LoadMigrations(migrations.FS, ".").
//
//go:embed *.sql
var FS embed.FS

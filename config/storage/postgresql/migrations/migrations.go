// Package migrations embeds the SQL schema migrations run at startup.
package migrations

import "embed"

// MigrationsFS is a filesystem that embeds the migrations folder
//
//go:embed *.sql
var MigrationsFS embed.FS

// Package migrations embeds the gateway's SQL schema.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files applied by database.RunMigrations.
//
//go:embed *.sql
var FS embed.FS

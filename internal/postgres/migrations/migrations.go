// Package migrations embeds the gateway's goose SQL migration files so the binary carries its own schema and needs
// no external migration directory at deploy time.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Package migrations embeds the ADT schema so the binary can migrate tenant
// schemas without shipping the SQL files separately.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Package migrations embeds the SQL migration files so the migrate binary
// does not depend on a file path at runtime.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

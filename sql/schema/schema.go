// Package schema embeds the goose migrations.
package schema

import "embed"

//go:embed *.sql
var FS embed.FS

// Package migrations embeds the goose SQL migrations applied by the migrate command.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Package sqlitemigrations embeds the sqlite-dialect migration tree.
package sqlitemigrations

import "embed"

//go:embed *.sql
var FS embed.FS

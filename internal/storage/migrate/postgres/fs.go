// Package postgresmigrations embeds the postgres-dialect migration tree,
// kept semantically equivalent to sqlitemigrations (§4.4: "Migrations for
// the two back-ends are kept in parallel directories").
package postgresmigrations

import "embed"

//go:embed *.sql
var FS embed.FS

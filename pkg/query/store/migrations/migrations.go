// Package migrations embeds the query store's SQL schema migrations for
// golang-migrate's iofs source driver.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

package migrations

import "embed"

// Files holds the Postgres schema migrations, applied in lexical order.
//
//go:embed *.sql
var Files embed.FS

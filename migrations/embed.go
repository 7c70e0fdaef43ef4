// Package migrations embeds the PostgreSQL schema so the server and reviewctl
// can apply it without files on disk.
package migrations

import "embed"

// FS holds every *.up.sql file, applied in lexical order.
//
//go:embed *.up.sql
var FS embed.FS

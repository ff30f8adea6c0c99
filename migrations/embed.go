// Package migrations embeds the journal's SQL migrations into the binary so
// the daemon never needs the files on disk.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS

// Package migrations holds the schema as plain SQL files named
// NNNN_name.up.sql and NNNN_name.down.sql.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var FS embed.FS

// Up returns the names of the up migrations in apply order.
func Up() ([]string, error) {
	names, err := fs.Glob(FS, "*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Version returns the numeric prefix of a migration file name.
func Version(name string) string {
	v, _, _ := strings.Cut(name, "_")
	return v
}

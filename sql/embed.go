// Package sqlschema embeds the goose migrations for the postgres document store.
package sqlschema

import "embed"

// Dir is the migration directory inside FS
const Dir = "schema"

//go:embed schema/*.sql
var FS embed.FS

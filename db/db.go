// Package db embeds the SQL migrations and the seeded intent schema so the
// binary carries its own datastore definition.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed seed/*.*
var SeedFiles embed.FS

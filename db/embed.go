// Package db embeds the storefront schema so the server can migrate itself
// at startup without shipping SQL files alongside the binary.
package db

import _ "embed"

// Schema holds the DDL for every storefront table.
//
//go:embed migrations/001_schema.sql
var Schema string

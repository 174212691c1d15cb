package db

import "embed"

// Migrations holds one golang-migrate directory per SQL dialect:
// migrations/postgres and migrations/sqlite.
//
//go:embed migrations
var Migrations embed.FS

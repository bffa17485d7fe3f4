// Package vtuplatform carries the embedded database migrations.
package vtuplatform

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

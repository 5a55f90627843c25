// Package db embeds the engine's DDL, applied at startup by the repository
// layer.
package db

import _ "embed"

// Schema is the full DDL for the coupons, coupon_usage, and orders tables.
//
//go:embed migrations/001_schema.sql
var Schema string

//go:build !cgo || purego
// +build !cgo purego

package storage

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver used for the run ledger.
	DriverName = "sqlite"
	// BuildMode describes the current build configuration.
	BuildMode = "purego"
)

// Package store holds the catalog and playback-state backends.
package store

import (
	"fmt"

	"github.com/dkeye/CoWatch/internal/core"
)

// Backend is a catalog and state store in one.
type Backend interface {
	core.Catalog
	core.StateStore
}

// Open picks the backend by name: "sqlite" or "file".
func Open(kind, sqlitePath, filePath string) (Backend, func() error, error) {
	switch kind {
	case "", "sqlite":
		db, err := OpenSQLite(sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case "file":
		f, err := OpenFile(filePath)
		if err != nil {
			return nil, nil, err
		}
		return f, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", kind)
	}
}

package backend

import (
	"kakeibo/internal/sheets"
	"kakeibo/internal/snapshot"
)

// CleanupFunc releases resources held by a created component.
type CleanupFunc func() error

// Result contains the backend instance and optional cleanup function.
type Result struct {
	Backend sheets.Backend
	Cleanup CleanupFunc
}

// SnapshotResult is the storage chosen for durable ledger snapshots.
type SnapshotResult struct {
	Storage snapshot.Storage
	Cleanup CleanupFunc
}

// Close runs the cleanup if there is one.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

func (r *SnapshotResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Type names a data backend.
type Type string

const (
	MemoryBackend   Type = "memory"
	SheetsBackend   Type = "sheets"
	UpstreamBackend Type = "upstream"
)

func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid.
func (t Type) IsValid() bool {
	switch t {
	case MemoryBackend, SheetsBackend, UpstreamBackend:
		return true
	default:
		return false
	}
}

// Types returns all valid backend types.
func Types() []Type {
	return []Type{MemoryBackend, SheetsBackend, UpstreamBackend}
}

package model

import "fmt"

// PersistenceError reports a failed read or write of a local file (ledger,
// trade log, CSV dump). The bot logs it and keeps trading.
type PersistenceError struct {
	Op   string // "read", "write", "parse"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

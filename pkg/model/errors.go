package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph lookups.
var (
	ErrNodeNotFound    = errors.New("node not found")
	ErrNodeExists      = errors.New("node already exists")
	ErrUnknownField    = errors.New("unknown field")
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrCycle           = errors.New("portrait graph contains a cycle")
)

// Sentinel errors for structure creation.
var (
	ErrUnknownStructure = errors.New("unknown structure")
	ErrNoSelection      = errors.New("structure requires a selected node")
	ErrStepOutOfRange   = errors.New("structure step out of range")
	ErrNotStaging       = errors.New("no structure is being staged")
)

// Sentinel errors for reconciliation and rendering.
var (
	ErrReconcileInProgress  = errors.New("reconciliation already in progress")
	ErrUnknownRenderer      = errors.New("no renderer registered for view type")
	ErrUnknownPostProcessor = errors.New("unknown post-processor")
	ErrInvalidPortrait      = errors.New("invalid portrait")
)

// FieldError identifies a field that failed validation.
type FieldError struct {
	FieldID string `json:"fieldID"`
	ESID    string `json:"esid"`
}

// ErrDanglingReference returns an error for a link to a node that does not exist.
func ErrDanglingReference(from, to int64) error {
	return fmt.Errorf("%w: node %d references missing node %d", ErrInvalidPortrait, from, to)
}

// ErrStructureIncomplete is returned when committing a structure whose steps
// have not all been completed.
var ErrStructureIncomplete = errors.New("structure has unfinished steps")

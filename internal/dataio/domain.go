package dataio

import (
	"context"
	"errors"
)

// ImportResult tallies one CSV import. Row failures are collected, not
// fatal: the importer keeps going so one bad row does not sink a
// thousand good ones.
type ImportResult struct {
	Created       int      `json:"created"`
	Updated       int      `json:"updated"`
	Errors        int      `json:"errors"`
	ErrorMessages []string `json:"error_messages"`
}

// column describes one CSV column of an entity template.
type column struct {
	name     string
	required bool
}

// entitySpec wires one importable/exportable entity into the registry.
type entitySpec struct {
	name    string
	columns []column
	example []string
	export  func(ctx context.Context) ([][]string, error)
	upsert  func(ctx context.Context, row map[string]string, actorID int64) (rowOutcome, error)
}

type rowOutcome int

const (
	outcomeCreated rowOutcome = iota
	outcomeUpdated
)

var (
	ErrUnknownEntity = errors.New("dataio: unknown entity")
	ErrValidation    = errors.New("dataio: validation failed")
)

package mapreduce

import (
	"errors"
	"fmt"
)

var (
	ErrNoStages   = errors.New("pipeline has no stages")
	ErrEmptyStage = errors.New("stage has no map, combine or reduce")
)

// MalformedRecordError reports an input record that could not be parsed.
// Skipping it would silently change aggregates, so it aborts the run.
type MalformedRecordError struct {
	Record string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record %q: %s", e.Record, e.Reason)
}

// UnsupportedKeyError reports an emitted key with no canonical encoding.
type UnsupportedKeyError struct {
	Key any
	Err error
}

func (e *UnsupportedKeyError) Error() string {
	return fmt.Sprintf("unsupported key of type %T: %v", e.Key, e.Err)
}

func (e *UnsupportedKeyError) Unwrap() error {
	return e.Err
}

// Phase names the part of a stage that failed.
type Phase string

const (
	PhaseInput   Phase = "input"
	PhaseMap     Phase = "map"
	PhaseCombine Phase = "combine"
	PhaseShuffle Phase = "shuffle"
	PhaseReduce  Phase = "reduce"
)

// StageError wraps the first failure of a stage.
type StageError struct {
	Index int
	Name  string
	Phase Phase
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %s: %v", e.Index, e.Name, e.Phase, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

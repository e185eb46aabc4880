package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the step of ProcessItem an outcome was decided in.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageQualify   Stage = "qualify"
	StageClassify  Stage = "classify"
	StageGenerate  Stage = "generate"
	StageStructure Stage = "structure"
	StageEmbed     Stage = "embed"
	StageDedup     Stage = "dedup"
	StagePersist   Stage = "persist"
	StageDone      Stage = "done"
)

// Failure kinds carried by StageError.
var (
	ErrFetch          = errors.New("fetch failure")
	ErrExtraction     = errors.New("extraction failure")
	ErrClassification = errors.New("classification failure")
	ErrGeneration     = errors.New("generation failure")
	ErrStructuring    = errors.New("structured extraction failure")
	ErrEmbedding      = errors.New("embedding failure")
	ErrSimilarity     = errors.New("similarity lookup failure")
	ErrPersistence    = errors.New("persistence failure")
)

// StageError is a fatal per-item error tagged with its stage and kind. It
// matches its kind with errors.Is and unwraps to the cause.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error { return []error{e.Kind, e.Err} }

func stageErr(stage Stage, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

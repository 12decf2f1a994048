package embedding

import (
	"errors"
	"fmt"
)

// ErrMalformedOutput marks inference output that cannot be used as an
// embedding (empty, non-finite, or of the wrong length).
var ErrMalformedOutput = errors.New("malformed inference output")

// DecodeError reports a file whose content could not be turned into a tensor.
type DecodeError struct {
	ID  FileID
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InferenceError reports a failed or unusable model invocation for one file.
type InferenceError struct {
	ID  FileID
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference %s: %v", e.ID, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Stage names the pipeline step at which an identifier failed.
type Stage string

const (
	StageDecode    Stage = "decode"
	StageInference Stage = "inference"
	StageOutput    Stage = "output"
	StageCanceled  Stage = "canceled"
)

// Failure is the notice emitted for an identifier that did not make it into
// the table. The identifier is simply absent from the table afterwards.
type Failure struct {
	ID    FileID `json:"id"`
	Stage Stage  `json:"stage"`
	Err   error  `json:"-"`
}

// Message returns the error text, or an empty string if there is none.
func (f Failure) Message() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

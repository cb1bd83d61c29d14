package grant

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("not found")

// Stage names the pipeline step an opportunity failed in.
type Stage string

// Pipeline stages recorded on failures.
const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StageEmbed   Stage = "embed"
	StageStore   Stage = "store"
	StageIndex   Stage = "index"
	StagePublish Stage = "publish"
)

// FetchError is a network or HTTP failure for one URL.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IngestError is an embedding, store or index failure for one grant.
type IngestError struct {
	Stage   Stage
	GrantID string
	Err     error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.GrantID, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

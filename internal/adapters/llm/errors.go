package llm

import "errors"

var (
	// ErrNoProject is returned when the Vertex AI project or region is missing.
	ErrNoProject = errors.New("llm: project and region must be set")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrMalformedResponse is returned when the model text is not the expected JSON.
	ErrMalformedResponse = errors.New("llm: malformed response")
)

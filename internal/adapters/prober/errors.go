package prober

import "errors"

var (
	// ErrNoURL is returned for a blank target.
	ErrNoURL = errors.New("prober: url is empty")
	// ErrBadStatus is returned when a deployment answers 4xx or 5xx.
	ErrBadStatus = errors.New("prober: unexpected status")
	// ErrNoSidecar is returned by Capture when no screenshot endpoint is set.
	ErrNoSidecar = errors.New("prober: screenshot sidecar not configured")
	// ErrNoUploader is returned by Capture when screenshots have nowhere to go.
	ErrNoUploader = errors.New("prober: artifact uploader not configured")
)

package model

import "time"

// ProgressEvent is a transient notification of a stage transition.
type ProgressEvent struct {
	SubmissionID string         `json:"submission_id"`
	Seq          uint64         `json:"seq"`
	Stage        Stage          `json:"stage"`
	Progress     int            `json:"progress"`
	Message      string         `json:"message"`
	Done         bool           `json:"done"`
	Error        bool           `json:"error"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data,omitempty"`
}

// Job is the queue payload for one pipeline run.
type Job struct {
	SubmissionID string    `json:"submission_id"`
	BatchID      string    `json:"batch_id,omitempty"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	Attempt      int       `json:"attempt"`

	// Receipt is broker-specific delivery state needed for Ack. It is not serialized.
	Receipt any `json:"-"`
}

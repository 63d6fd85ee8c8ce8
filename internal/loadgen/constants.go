package loadgen

import "time"

// Defaults applied to a zero Config.
const (
	DefaultChunkSize     = 25
	DefaultPollInterval  = 2 * time.Second
	DefaultWait          = 15 * time.Minute
	DefaultBatchName     = "load run"
	PercentageMultiplier = 100
)

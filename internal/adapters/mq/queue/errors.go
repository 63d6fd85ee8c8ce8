package queue

import "errors"

// Sentinel errors for queue adapters.
var (
	ErrClosed       = errors.New("queue closed")
	ErrEncodeJob    = errors.New("encode job")
	ErrDecodeJob    = errors.New("decode job")
	ErrNoReceipt    = errors.New("job has no delivery receipt")
	ErrNoBrokers    = errors.New("kafka brokers are required")
	ErrNoTopic      = errors.New("kafka topic is required")
	ErrNoRedisKey   = errors.New("redis queue key is required")
	ErrNilRedisConn = errors.New("redis client is required")
)

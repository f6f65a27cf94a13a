package queue

// Task types handled by the worker process.
const (
	TypeUsageRecord = "usage:record"
)

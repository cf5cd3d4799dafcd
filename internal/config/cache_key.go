package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamDefinitionKey returns the cache key for an exam's full definition
// (metadata, ordered questions and options including correctness flags).
func (r *CacheKeyStruct) ExamDefinitionKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

// ExpirySweepLock guards the expiry sweep so overlapping processes skip a run.
func (r *CacheKeyStruct) ExpirySweepLock() string {
	return "lock:expiry-sweep"
}

var CacheKey = NewCacheKeyStruct()

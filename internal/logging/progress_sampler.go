package logging

import "strings"

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when the executing node or the percentage bucket changes.
type ProgressSampler struct {
	bucketSize float64
	lastNode   string
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 10%) or when the node changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged. Percent can be
// negative to indicate "unknown".
func (s *ProgressSampler) ShouldLog(percent float64, node string) bool {
	if s == nil {
		return true
	}
	node = strings.TrimSpace(node)
	emit := false
	if node != "" && node != s.lastNode {
		s.lastNode = node
		s.lastBucket = -1
		emit = true
	}
	if percent >= 0 {
		bucket := int(percent / s.bucketSize)
		if percent >= 100 {
			bucket = int(100 / s.bucketSize)
		}
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

package ingestion_engine

import "time"

// IngestConfig tunes the ingestion pipeline.
//
// TargetTokens:     approximate tokens per passage (e.g. 512).
// OverlapSentences: sentences carried from the end of a passage into the
//                   next one, so a fact split across a boundary stays
//                   retrievable from either side.
// EmbedBatchSize:   chunks embedded per provider call.
// EmbedWorkers:     concurrent embed batches per job.
// QualityThreshold: versions scoring below it land in needs_review.
// MaxAttempts:      retry cap for transient (embedding) failures.
// RetryBackoff:     base backoff, doubled per attempt.
// LeaseDuration:    how long a claimed job stays fenced before a crashed
//                   worker's lease expires and the job is reclaimable.
// PollInterval:     idle sleep between claim attempts.
type IngestConfig struct {
	TargetTokens     int
	OverlapSentences int
	EmbedBatchSize   int
	EmbedWorkers     int
	QualityThreshold float64
	MaxAttempts      int
	RetryBackoff     time.Duration
	LeaseDuration    time.Duration
	PollInterval     time.Duration
	Bucket           string
}

// DefaultIngestConfig mirrors the documented defaults.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		TargetTokens:     512,
		OverlapSentences: 1,
		EmbedBatchSize:   16,
		EmbedWorkers:     4,
		QualityThreshold: 0.5,
		MaxAttempts:      3,
		RetryBackoff:     2 * time.Second,
		LeaseDuration:    5 * time.Minute,
		PollInterval:     5 * time.Second,
	}
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

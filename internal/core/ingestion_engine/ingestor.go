package ingestion_engine

import "context"

// Ingestor drives document versions through the ingestion state machine.
type Ingestor interface {
	// Start launches numWorkers polling goroutines that claim and process
	// jobs until ctx is cancelled.
	Start(ctx context.Context, numWorkers int)
	// ProcessNext claims at most one job and runs it to a state
	// transition. It reports whether a job was claimed.
	ProcessNext(ctx context.Context) (bool, error)
}

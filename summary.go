package solrbulk

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Summary is the externally observable result of a run: everything the
// pipeline did besides the index writes themselves.
type Summary struct {
	// RunID tags every log line and summary of one run.
	RunID string

	// FilesProcessed counts input locations handed to the loader,
	// including ones that failed to load or were rejected.
	FilesProcessed int

	// DocsIndexed counts documents confirmed written by a chunk add.
	DocsIndexed int

	// DocsSkipped counts rejected records, failed loads, and documents
	// of chunks whose write failed.
	DocsSkipped int

	// Tracking is the final relationship state.
	Tracking TrackerState
}

// NewSummary returns an empty summary with a fresh run id.
func NewSummary() *Summary {
	return &Summary{
		RunID:    uuid.NewString(),
		Tracking: NewTrackerState(),
	}
}

// Merge folds a worker's summary into s: counts add, tracking sets
// union. s keeps its own run id.
func (s *Summary) Merge(other *Summary) {
	s.FilesProcessed += other.FilesProcessed
	s.DocsIndexed += other.DocsIndexed
	s.DocsSkipped += other.DocsSkipped
	s.Tracking.Merge(other.Tracking)
}

// Missing returns the parent ids referenced by a child but never
// accounted for, in this run's documents or in the index.
func (s *Summary) Missing() []string {
	return s.Tracking.Missing()
}

// Log writes the run totals, and a warning when parents are missing.
func (s *Summary) Log(log zerolog.Logger) {
	log.Info().
		Str("run", s.RunID).
		Int("files_processed", s.FilesProcessed).
		Int("docs_indexed", s.DocsIndexed).
		Int("docs_skipped", s.DocsSkipped).
		Int("parents_found", len(s.Tracking.Found)).
		Int("parents_processed", len(s.Tracking.Processed)).
		Int("parents_pending", len(s.Tracking.Pending)).
		Msg("run finished")
	if missing := s.Missing(); len(missing) > 0 {
		log.Warn().
			Str("run", s.RunID).
			Strs("parents", missing).
			Msg("parent datasets referenced but never found")
	}
}

// Package progress carries the events a migration run produces. The engine
// only pushes events through the Reporter interface; delivery (log line,
// websocket, anything else) is the implementation's business.
package progress

import (
	"github.com/rs/zerolog"
)

// Kind discriminates event variants for transports that serialize them.
type Kind string

const (
	KindBatchCompleted   Kind = "batch_completed"
	KindValidationResult Kind = "validation_result"
	KindErrorOccurred    Kind = "error_occurred"
	KindUnmigratedItems  Kind = "unmigrated_items"
)

// Event is one progress notification. Events are immutable once emitted.
type Event interface {
	Kind() Kind
}

// BatchCompleted is emitted after every batch, with cumulative counts.
type BatchCompleted struct {
	Processed  int64   `json:"processed"`
	Total      int64   `json:"total"`
	Percentage float64 `json:"percentage"`
}

func (BatchCompleted) Kind() Kind { return KindBatchCompleted }

// ValidationResult compares the post-run source and destination counts.
type ValidationResult struct {
	SourceCount      int64 `json:"sourceCount"`
	DestinationCount int64 `json:"destinationCount"`
	Matched          bool  `json:"matched"`
}

func (ValidationResult) Kind() Kind { return KindValidationResult }

// ErrorOccurred reports a record failure. The run keeps going.
type ErrorOccurred struct {
	Message string `json:"message"`
}

func (ErrorOccurred) Kind() Kind { return KindErrorOccurred }

// UnmigratedItems lists source record ids with no destination counterpart.
type UnmigratedItems struct {
	IDs []string `json:"ids"`
}

func (UnmigratedItems) Kind() Kind { return KindUnmigratedItems }

// Reporter receives events. Emit is fire-and-forget: it must not block the
// migration and must not fail it — implementations log delivery problems
// and move on.
type Reporter interface {
	Emit(Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(Event) {}

// Multi fans one event out to several reporters in order.
type Multi []Reporter

func (m Multi) Emit(ev Event) {
	for _, r := range m {
		r.Emit(ev)
	}
}

// LogReporter writes events to a zerolog logger.
type LogReporter struct {
	log zerolog.Logger
}

func NewLogReporter(log zerolog.Logger) *LogReporter {
	return &LogReporter{log: log}
}

func (r *LogReporter) Emit(ev Event) {
	switch e := ev.(type) {
	case BatchCompleted:
		r.log.Info().
			Int64("processed", e.Processed).
			Int64("total", e.Total).
			Float64("percentage", e.Percentage).
			Msg("batch completed")
	case ValidationResult:
		r.log.Info().
			Int64("source_count", e.SourceCount).
			Int64("destination_count", e.DestinationCount).
			Bool("matched", e.Matched).
			Msg("validation result")
	case ErrorOccurred:
		r.log.Error().Msg(e.Message)
	case UnmigratedItems:
		r.log.Warn().Strs("ids", e.IDs).Msg("unmigrated items")
	default:
		r.log.Debug().Str("kind", string(ev.Kind())).Msg("progress event")
	}
}

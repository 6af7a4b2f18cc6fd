package migrate

// RecordFailure is one record that could not be written, with the reason
// the write gave up (exhausted retries or a permanent error).
type RecordFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Result is the accounting for one migration run. It is owned and mutated
// by the migrator for the duration of the run and frozen once returned;
// Succeeded+Failed == Attempted holds at all times.
type Result struct {
	Attempted int64           `json:"attempted"`
	Succeeded int64           `json:"succeeded"`
	Failed    int64           `json:"failed"`
	Failures  []RecordFailure `json:"failures,omitempty"`
}

// Validation is the outcome of a verification pass. A mismatch is a
// reported result, not an error.
type Validation struct {
	SourceCount      int64    `json:"sourceCount"`
	DestinationCount int64    `json:"destinationCount"`
	Matched          bool     `json:"matched"`
	Unmigrated       []string `json:"unmigrated,omitempty"`
}

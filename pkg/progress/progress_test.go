package progress

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type captured struct {
	events []Event
}

func (c *captured) Emit(ev Event) {
	c.events = append(c.events, ev)
}

func TestMultiFansOut(t *testing.T) {
	a := &captured{}
	b := &captured{}
	m := Multi{a, b, Nop{}}

	m.Emit(BatchCompleted{Processed: 100, Total: 250, Percentage: 40})
	m.Emit(ErrorOccurred{Message: "record 42: timeout"})

	assert.Len(t, a.events, 2)
	assert.Equal(t, a.events, b.events)
	assert.Equal(t, KindBatchCompleted, a.events[0].Kind())
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogReporter(zerolog.New(&buf))

	r.Emit(BatchCompleted{Processed: 100, Total: 250, Percentage: 40})
	r.Emit(ValidationResult{SourceCount: 3, DestinationCount: 2, Matched: false})
	r.Emit(UnmigratedItems{IDs: []string{"B"}})
	r.Emit(ErrorOccurred{Message: "record B: throttled"})

	out := buf.String()
	assert.Contains(t, out, "batch completed")
	assert.Contains(t, out, `"matched":false`)
	assert.Contains(t, out, `"ids":["B"]`)
	assert.Contains(t, out, "record B: throttled")
}

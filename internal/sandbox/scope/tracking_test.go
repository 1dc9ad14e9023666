package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
)

func TestTrackerRecordsReadsAndWrites(t *testing.T) {
	clock := &Clock{}
	tr := NewTracker(clock, true)

	tr.Read("value")
	assert.Equal(t, protocol.Tracking{"value": {Read: protocol.Version(0)}}, tr.Vars())

	assert.Equal(t, 1, tr.Write("value"))
	tr.Read("value")
	tr.Read("other")

	assert.Equal(t, protocol.Tracking{
		"value": {Read: protocol.Version(1), Write: protocol.Version(1)},
		"other": {Read: protocol.Version(1)},
	}, tr.Vars())
	assert.Equal(t, map[string]int{"value": 1}, tr.Written())
	assert.Equal(t, 1, clock.Now())
}

func TestTrackerWithoutTracking(t *testing.T) {
	clock := &Clock{}
	tr := NewTracker(clock, false)

	tr.Read("a")
	tr.Write("a")
	tr.Write("b")

	assert.Nil(t, tr.Vars())
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, tr.Written())
}

func TestTrackerSharesClock(t *testing.T) {
	clock := &Clock{}
	first := NewTracker(clock, true)
	second := NewTracker(clock, true)

	first.Write("a")
	second.Write("b")
	first.Read("b")

	assert.Equal(t, 2, clock.Now())
	assert.Equal(t, protocol.Version(2), first.Vars()["b"].Read)
	assert.Equal(t, protocol.Version(2), second.Vars()["b"].Write)
}

func TestWrittenIsACopy(t *testing.T) {
	tr := NewTracker(&Clock{}, false)
	tr.Write("a")

	w := tr.Written()
	w["a"] = 99

	assert.Equal(t, 1, tr.Written()["a"])
}

func TestClockAdvance(t *testing.T) {
	clock := &Clock{}
	clock.Advance(5)
	clock.Advance(3)
	assert.Equal(t, 5, clock.Now())
	assert.Equal(t, 6, clock.Tick())
}

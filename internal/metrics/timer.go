package metrics

import (
	"time"

	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

// Timer measures one operation and reports it as "<op>.latency" tagged
// with the operation and its outcome.
type Timer struct {
	publisher types.Publisher
	op        string
	tags      []string
	start     time.Time
}

// StartTimer starts timing op. Stop or StopErr must be called once.
func StartTimer(publisher types.Publisher, op string, tags ...string) *Timer {
	return &Timer{
		publisher: publisher,
		op:        op,
		tags:      append([]string{OperationTag(op)}, tags...),
		start:     time.Now(),
	}
}

// Stop records a successful operation and returns its duration.
func (t *Timer) Stop() time.Duration {
	return t.StopErr(nil)
}

// StopErr records the operation with outcome ok or error.
func (t *Timer) StopErr(err error) time.Duration {
	d := time.Since(t.start)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	t.publisher.Timing(t.op+".latency", d, append(t.tags, Tag("outcome", outcome))...)
	return d
}

// Elapsed returns the time since the timer was started without recording.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

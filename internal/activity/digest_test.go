package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentwatch/internal/realtime"
)

func TestSummarize(t *testing.T) {
	snap := Snapshot{Live: true, Entries: []realtime.Envelope{
		env("email_sent", nil),
		env("heartbeat", nil),
		env("task_progress", nil),
		env("email_sent", nil),
		env("pong", nil),
	}}

	d := Summarize(snap)
	assert.Equal(t, 3, d.Visible)
	assert.Equal(t, 2, d.Noise)
	assert.Equal(t, []TypeCount{{"email_sent", 2}, {"task_progress", 1}}, d.ByType)
	assert.Equal(t, "3 events (+2 keep-alive): email_sent 2, task_progress 1", d.String())
}

func TestSummarizeBeforeFirstEnvelope(t *testing.T) {
	d := Summarize(Snapshot{})
	assert.False(t, d.Live)
	assert.Equal(t, "waiting for activity", d.String())
}

func TestParseSchedule(t *testing.T) {
	for _, spec := range []string{"*/5 * * * * *", "*/5 * * * *", "@every 30s", "@hourly"} {
		_, err := ParseSchedule(spec)
		assert.NoError(t, err, spec)
	}
	_, err := ParseSchedule("not a schedule")
	assert.Error(t, err)
}

func TestDigestSchedulerRuns(t *testing.T) {
	reg := realtime.NewRegistry()
	b := NewBuffer(reg, 10).Attach()
	defer b.Close()
	reg.Dispatch(env("email_sent", nil))

	digests := make(chan Digest, 4)
	s, err := NewDigestScheduler("@every 1s", b, func(d Digest) {
		select {
		case digests <- d:
		default:
		}
	})
	require.NoError(t, err)

	s.Start()
	s.Start()
	defer s.Stop()

	select {
	case d := <-digests:
		assert.Equal(t, 1, d.Visible)
	case <-time.After(3 * time.Second):
		t.Fatal("no digest emitted")
	}
}

func TestDigestSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewDigestScheduler("bogus", NewBuffer(realtime.NewRegistry(), 1), func(Digest) {})
	assert.Error(t, err)
}

func TestDigestSchedulerStopWithoutStart(t *testing.T) {
	s, err := NewDigestScheduler("@hourly", NewBuffer(realtime.NewRegistry(), 1), func(Digest) {})
	require.NoError(t, err)
	s.Stop()
}

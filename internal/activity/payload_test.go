package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentwatch/internal/realtime"
)

func decode(t *testing.T, frame string) realtime.Envelope {
	t.Helper()
	e, err := realtime.DecodeEnvelope([]byte(frame))
	require.NoError(t, err)
	return e
}

func TestClassifyProspects(t *testing.T) {
	e := decode(t, `{"type":"new_prospects","payload":{"prospects":[{"name":"Ada","company":"Acme"},{"name":"Bob"},"junk"],"search_date":"2024-05-01"}}`)

	p, ok := Classify(e).(ProspectsPayload)
	require.True(t, ok)
	assert.Equal(t, 2, p.Count)
	assert.Equal(t, "2024-05-01", p.SearchDate)
	assert.Equal(t, []string{"Ada, Acme", "Bob"}, p.Describe())
}

func TestClassifyResearch(t *testing.T) {
	e := decode(t, `{"type":"prospect_research_complete","payload":{"profiles":[{"prospect":"Ada","sentiment_score":0.8},{"prospect":"Bob"}],"count":2,"text":"Researched 2 prospects"}}`)

	p, ok := Classify(e).(ResearchPayload)
	require.True(t, ok)
	assert.Equal(t, 2, p.Count)
	assert.Equal(t, "Researched 2 prospects", p.Text)
	assert.Equal(t, []string{"Ada (sentiment 0.8)", "Bob"}, p.Describe())
}

func TestClassifyProgress(t *testing.T) {
	e := decode(t, `{"type":"task_progress","payload":{"task_id":"t-1","progress_pct":50,"completed":1,"total":2}}`)

	p, ok := Classify(e).(ProgressPayload)
	require.True(t, ok)
	assert.Equal(t, ProgressPayload{TaskID: "t-1", ProgressPct: 50, Completed: 1, Total: 2}, p)
	assert.Equal(t, []string{"[##########..........] t-1"}, p.Describe())

	missing := Classify(decode(t, `{"type":"task_progress","payload":{"progress_pct":5}}`)).(ProgressPayload)
	assert.Equal(t, -1, missing.Completed)
	assert.Equal(t, -1, missing.Total)
	assert.Nil(t, missing.Describe())
}

func TestClassifyFlatAgentLog(t *testing.T) {
	e := decode(t, `{"type":"agent_log","agent_id":"a1","agent_name":"Researcher","message":"Looking up Acme","level":"warning","timestamp":"2024-05-01T09:30:15"}`)

	p, ok := Classify(e).(AgentLogPayload)
	require.True(t, ok)
	assert.Equal(t, "Researcher", p.AgentName)
	assert.Equal(t, []string{"[WARNING] Researcher: Looking up Acme"}, p.Describe())
}

func TestClassifyOpaque(t *testing.T) {
	e := decode(t, `{"type":"deal_alert","payload":{"deal":"Acme"}}`)

	p, ok := Classify(e).(OpaquePayload)
	require.True(t, ok)
	assert.Equal(t, "Acme", p.Fields["deal"])
	assert.Nil(t, p.Describe())
}

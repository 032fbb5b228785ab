package activity

import (
	"fmt"
	"strings"

	"agentwatch/internal/realtime"
)

// Payload is the closed set of payload shapes the feed knows how to detail.
// Classify picks the variant from the envelope's type discriminator.
type Payload interface {
	// Describe returns detail lines for the payload, possibly none.
	Describe() []string
	payload()
}

// Prospect is one entry of a new_prospects payload.
type Prospect struct {
	Name    string
	Company string
}

// ProspectsPayload is carried by new_prospects.
type ProspectsPayload struct {
	Prospects  []Prospect
	Count      int
	SearchDate string
}

// Profile is one researched prospect.
type Profile struct {
	Prospect       string
	SentimentScore float64
	HasScore       bool
}

// ResearchPayload is carried by prospect_research_complete.
type ResearchPayload struct {
	Profiles []Profile
	Count    int
	Text     string
}

// ProgressPayload is carried by task_progress. Counters the producer left out
// are -1.
type ProgressPayload struct {
	TaskID      string
	ProgressPct float64
	Completed   int
	Total       int
}

// AgentLogPayload is an agent_log frame. These frames are flat, so the fields
// come from the top level of the envelope.
type AgentLogPayload struct {
	AgentID   string
	AgentName string
	Level     string
	Message   string
}

// OpaquePayload is every other payload, kept as decoded.
type OpaquePayload struct {
	Fields map[string]any
}

func (ProspectsPayload) payload() {}
func (ResearchPayload) payload()  {}
func (ProgressPayload) payload()  {}
func (AgentLogPayload) payload()  {}
func (OpaquePayload) payload()    {}

// Classify decodes env's payload into its variant. Missing or mistyped fields
// yield zero values; Classify never fails.
func Classify(env realtime.Envelope) Payload {
	switch env.Type {
	case "new_prospects":
		p := ProspectsPayload{Count: intField(env, "count", 0), SearchDate: stringField(env, "search_date")}
		for _, item := range objects(env, "prospects") {
			p.Prospects = append(p.Prospects, Prospect{
				Name:    str(item["name"]),
				Company: str(item["company"]),
			})
		}
		if p.Count == 0 {
			p.Count = len(p.Prospects)
		}
		return p
	case "prospect_research_complete":
		p := ResearchPayload{Count: intField(env, "count", 0), Text: stringField(env, "text")}
		for _, item := range objects(env, "profiles") {
			score, ok := item["sentiment_score"].(float64)
			p.Profiles = append(p.Profiles, Profile{
				Prospect:       str(item["prospect"]),
				SentimentScore: score,
				HasScore:       ok,
			})
		}
		return p
	case "task_progress":
		pct, _ := env.Field("progress_pct")
		f, _ := pct.(float64)
		return ProgressPayload{
			TaskID:      stringField(env, "task_id"),
			ProgressPct: f,
			Completed:   intField(env, "completed", -1),
			Total:       intField(env, "total", -1),
		}
	case "agent_log":
		return AgentLogPayload{
			AgentID:   stringField(env, "agent_id"),
			AgentName: stringField(env, "agent_name"),
			Level:     stringField(env, "level"),
			Message:   stringField(env, "message"),
		}
	}
	return OpaquePayload{Fields: env.Payload}
}

func (p ProspectsPayload) Describe() []string {
	lines := make([]string, 0, len(p.Prospects))
	for _, pr := range p.Prospects {
		if pr.Company != "" {
			lines = append(lines, fmt.Sprintf("%s, %s", pr.Name, pr.Company))
		} else {
			lines = append(lines, pr.Name)
		}
	}
	return lines
}

func (p ResearchPayload) Describe() []string {
	lines := make([]string, 0, len(p.Profiles))
	for _, pr := range p.Profiles {
		if pr.HasScore {
			lines = append(lines, fmt.Sprintf("%s (sentiment %s)", pr.Prospect, format(pr.SentimentScore)))
		} else {
			lines = append(lines, pr.Prospect)
		}
	}
	return lines
}

func (p ProgressPayload) Describe() []string {
	if p.Total <= 0 {
		return nil
	}
	const width = 20
	done := int(p.ProgressPct / 100 * width)
	done = max(0, min(width, done))
	bar := "[" + strings.Repeat("#", done) + strings.Repeat(".", width-done) + "]"
	if p.TaskID != "" {
		return []string{bar + " " + p.TaskID}
	}
	return []string{bar}
}

func (p AgentLogPayload) Describe() []string {
	name := p.AgentName
	if name == "" {
		name = p.AgentID
	}
	if name == "" || p.Message == "" {
		return nil
	}
	level := strings.ToUpper(p.Level)
	if level == "" {
		level = "INFO"
	}
	return []string{fmt.Sprintf("[%s] %s: %s", level, name, p.Message)}
}

func (OpaquePayload) Describe() []string { return nil }

func stringField(env realtime.Envelope, name string) string {
	v, _ := env.Field(name)
	return str(v)
}

func intField(env realtime.Envelope, name string, missing int) int {
	v, _ := env.Field(name)
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return missing
}

func objects(env realtime.Envelope, name string) []map[string]any {
	v, _ := env.Field(name)
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

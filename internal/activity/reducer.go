package activity

import (
	"fmt"
	"strconv"
	"time"

	"agentwatch/internal/realtime"
)

// TimeLayout is how feed times are displayed.
const TimeLayout = "15:04:05"

var noiseTypes = map[string]bool{
	"heartbeat":       true,
	"ping":            true,
	"pong":            true,
	"health_check":    true,
	"health_response": true,
}

var labels = map[string]string{
	"new_prospects":              "New prospects found",
	"prospect_research_complete": "Prospect research complete",
	"email_draft_request":        "Email draft requested",
	"email_draft_ready":          "Email draft ready",
	"email_quality_check":        "Email quality check",
	"email_approved":             "Email approved",
	"email_rejected":             "Email rejected",
	"email_sent":                 "Email sent",
	"response_received":          "Response received",
	"response_categorized":       "Response categorized",
	"response_draft_ready":       "Reply draft ready",
	"deal_stage_update":          "Deal stage updated",
	"deal_alert":                 "Deal alert",
	"broadcast":                  "Broadcast",
	"agent_log":                  "Agent log",
	"shutdown":                   "Agent shutting down",
	"task_created":               "Task created",
	"task_plan_ready":            "Task plan ready",
	"task_assigned":              "Subtask assigned",
	"task_progress":              "Task progress",
	"task_subtask_complete":      "Subtask complete",
	"task_completed":             "Task completed",
	"task_failed":                "Task failed",
}

// timestampLayouts are tried in order. The backend emits ISO 8601 without a zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// IsNoise reports whether env is keep-alive or health chatter that the feed hides.
// Older producers put the type inside the payload, so that is checked too.
func IsNoise(env realtime.Envelope) bool {
	if noiseTypes[env.Type] {
		return true
	}
	for _, key := range []string{"type", "message_type"} {
		if s, ok := env.Payload[key].(string); ok && noiseTypes[s] {
			return true
		}
	}
	return false
}

// Label returns the static display label for an event type.
func Label(eventType string) (string, bool) {
	l, ok := labels[eventType]
	return l, ok
}

// Text derives the one-line description of env. The first rule that matches wins:
// text, summary, title, error, progress, count, type label, raw type.
func Text(env realtime.Envelope) string {
	for _, key := range []string{"text", "summary", "title"} {
		if v, ok := env.Field(key); ok && truthy(v) {
			return format(v)
		}
	}
	if v, ok := env.Field("error"); ok && truthy(v) {
		return "error: " + format(v)
	}
	if v, ok := env.Field("progress_pct"); ok && v != nil {
		completed, _ := env.Field("completed")
		total, _ := env.Field("total")
		return fmt.Sprintf("%s%% (%s/%s)", format(v), format(completed), format(total))
	}
	if v, ok := env.Field("count"); ok && v != nil {
		return format(v) + " entries"
	}
	if l, ok := labels[env.Type]; ok {
		return l
	}
	return env.Type
}

// DisplayTime returns the producer's timestamp when present, otherwise now.
// Callers pass a fresh now on every render; the fallback is never stored.
func DisplayTime(env realtime.Envelope, now time.Time) string {
	if env.Timestamp == "" {
		return now.Format(TimeLayout)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, env.Timestamp, time.Local); err == nil {
			return t.Local().Format(TimeLayout)
		}
	}
	// Unknown formats are shown as the producer wrote them.
	return env.Timestamp
}

// Line is one rendered feed row.
type Line struct {
	Time   string
	Type   string
	Sender string
	Text   string
}

func (l Line) String() string {
	if l.Sender == "" {
		return fmt.Sprintf("%s  %-26s %s", l.Time, l.Type, l.Text)
	}
	return fmt.Sprintf("%s  %-26s %s (%s)", l.Time, l.Type, l.Text, l.Sender)
}

// RenderOne renders a single envelope.
func RenderOne(env realtime.Envelope, now time.Time) Line {
	return Line{
		Time:   DisplayTime(env, now),
		Type:   env.Type,
		Sender: env.SenderID,
		Text:   Text(env),
	}
}

// Render converts a snapshot into feed lines, most recent first, dropping noise.
// Noise still occupies buffer slots; it is only hidden here.
func Render(snap Snapshot, now time.Time) []Line {
	lines := make([]Line, 0, len(snap.Entries))
	for _, env := range snap.Entries {
		if IsNoise(env) {
			continue
		}
		lines = append(lines, RenderOne(env, now))
	}
	return lines
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case float64:
		return x != 0
	case bool:
		return x
	}
	return true
}

// format renders JSON-decoded values; whole numbers print without a fraction.
func format(v any) string {
	switch x := v.(type) {
	case nil:
		return "?"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	}
	return fmt.Sprint(v)
}

package activity

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"agentwatch/pkg/logger"
)

// TypeCount is the number of buffered envelopes of one type.
type TypeCount struct {
	Type  string
	Count int
}

// Digest summarizes a snapshot.
type Digest struct {
	Visible int
	Noise   int
	Live    bool
	// ByType covers visible envelopes only, most frequent first.
	ByType []TypeCount
}

// Summarize counts the entries of snap.
func Summarize(snap Snapshot) Digest {
	d := Digest{Live: snap.Live}
	counts := make(map[string]int)
	for _, env := range snap.Entries {
		if IsNoise(env) {
			d.Noise++
			continue
		}
		d.Visible++
		counts[env.Type]++
	}
	for t, n := range counts {
		d.ByType = append(d.ByType, TypeCount{Type: t, Count: n})
	}
	sort.Slice(d.ByType, func(i, j int) bool {
		if d.ByType[i].Count != d.ByType[j].Count {
			return d.ByType[i].Count > d.ByType[j].Count
		}
		return d.ByType[i].Type < d.ByType[j].Type
	})
	return d
}

func (d Digest) String() string {
	if !d.Live {
		return "waiting for activity"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d events", d.Visible)
	if d.Noise > 0 {
		fmt.Fprintf(&b, " (+%d keep-alive)", d.Noise)
	}
	for i, tc := range d.ByType {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %d", tc.Type, tc.Count)
	}
	return b.String()
}

// DigestScheduler periodically summarizes a Buffer and hands the digest to a sink.
type DigestScheduler struct {
	cron   *cron.Cron
	buffer *Buffer
	sink   func(Digest)
	log    zerolog.Logger

	mu      sync.Mutex
	running bool
}

var digestParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule accepts six-field (with seconds), standard five-field and
// descriptor (@every 1m) specs.
func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := digestParser.Parse(spec)
	if err == nil {
		return sched, nil
	}
	if sched, err2 := cron.ParseStandard(spec); err2 == nil {
		return sched, nil
	}
	return nil, fmt.Errorf("invalid digest schedule %q: %w", spec, err)
}

// NewDigestScheduler schedules a digest of buffer according to spec.
func NewDigestScheduler(spec string, buffer *Buffer, sink func(Digest)) (*DigestScheduler, error) {
	sched, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}

	log := logger.Component("digest")
	s := &DigestScheduler{
		cron:   cron.New(cron.WithLogger(cron.PrintfLogger(&log))),
		buffer: buffer,
		sink:   sink,
		log:    log,
	}
	s.cron.Schedule(sched, cron.FuncJob(s.Run))
	return s, nil
}

// Run emits one digest immediately.
func (s *DigestScheduler) Run() {
	s.sink(Summarize(s.buffer.Snapshot()))
}

// Start begins scheduling. Starting twice is a no-op.
func (s *DigestScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.log.Debug().Msg("Digest schedule started")
}

// Stop halts scheduling and waits for a digest in progress.
func (s *DigestScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

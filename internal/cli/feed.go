package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/term"

	"agentwatch/internal/activity"
	"agentwatch/internal/realtime"
)

// feedPrinter writes feed lines as envelopes arrive. Handlers and the digest
// schedule call it from different goroutines.
type feedPrinter struct {
	mu        sync.Mutex
	out       io.Writer
	width     int
	details   bool
	showNoise bool
	now       func() time.Time
}

func newFeedPrinter(out io.Writer, details, showNoise bool) *feedPrinter {
	return &feedPrinter{
		out:       out,
		width:     terminalWidth(out),
		details:   details,
		showNoise: showNoise,
		now:       time.Now,
	}
}

// terminalWidth returns the column count of out, or 0 when out is not a terminal.
func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

func (p *feedPrinter) envelope(env realtime.Envelope) {
	if !p.showNoise && activity.IsNoise(env) {
		return
	}
	line := activity.RenderOne(env, p.now())

	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.out, p.fit(line.String()))
	if !p.details {
		return
	}
	for _, detail := range activity.Classify(env).Describe() {
		fmt.Fprintln(p.out, p.fit("          "+detail))
	}
}

func (p *feedPrinter) digest(d activity.Digest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s  -- %s\n", p.now().Format(activity.TimeLayout), d)
}

func (p *feedPrinter) status(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s  -- %s\n", p.now().Format(activity.TimeLayout), msg)
}

// fit truncates s to the terminal width.
func (p *feedPrinter) fit(s string) string {
	if p.width <= 1 || utf8.RuneCountInString(s) <= p.width {
		return s
	}
	runes := []rune(s)
	return string(runes[:p.width-1]) + "…"
}

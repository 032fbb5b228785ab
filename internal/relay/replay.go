package relay

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"agentwatch/internal/realtime"
	"agentwatch/pkg/logger"
)

// Broadcaster is what Replay publishes to. *Hub implements it.
type Broadcaster interface {
	Broadcast(data []byte) bool
}

// Replay reads newline-delimited envelopes from r and broadcasts them in order,
// waiting interval between frames. Blank lines are skipped; lines that are not
// JSON objects are logged and skipped. It returns the number of frames sent.
func Replay(ctx context.Context, r io.Reader, dst Broadcaster, interval time.Duration) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxPublishBytes)

	sent, line := 0, 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		if _, err := realtime.DecodeEnvelope(data); err != nil {
			logger.Warn().Err(err).Int("line", line).Msg("Skipping replay line")
			continue
		}

		if sent > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(interval):
			}
		} else if err := ctx.Err(); err != nil {
			return sent, err
		}

		frame := make([]byte, len(data))
		copy(frame, data)
		if !dst.Broadcast(frame) {
			return sent, fmt.Errorf("replay line %d: relay stopped", line)
		}
		sent++
	}
	if err := scanner.Err(); err != nil {
		return sent, fmt.Errorf("read replay: %w", err)
	}
	return sent, nil
}

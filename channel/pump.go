package channel

import (
	"errors"
	"io"
	"log/slog"
)

// StartPump starts the channel's pump worker if one is not already
// running: a single thread that fetches the next packet from source,
// snapshots Playable, and fans the packet out to every member. It exits
// when the source is exhausted or Playable is empty at the top of an
// iteration (invariant: pump_alive ⇔ playable ≠ ∅).
func (c *Channel) StartPump(log *slog.Logger) {
	c.pumpMu.Lock()
	defer c.pumpMu.Unlock()
	if c.pumpCancel != nil {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.pumpCancel = func() { close(stop) }
	c.pumpDone = done

	go c.runPump(log, stop, done)
}

// StopPump signals the running pump worker to exit at its next iteration
// boundary and waits for it to do so. A no-op if no pump is running.
func (c *Channel) StopPump() {
	c.pumpMu.Lock()
	cancel := c.pumpCancel
	done := c.pumpDone
	c.pumpMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Channel) runPump(log *slog.Logger, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer c.clearPump()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if c.PlayableSize() == 0 {
			return
		}

		frame, err := c.source.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("pump source error, terminating", "filename", c.Filename, "error", err)
			}
			return
		}

		// Best-effort: a frame sent to a just-departed subscriber is
		// permitted (spec.md §5 cancellation semantics).
		for _, sub := range c.PlayableSnapshot() {
			if _, err := c.LocalConn.WriteToUDP(frame, sub.Addr); err != nil {
				log.Debug("pump send failed", "filename", c.Filename, "subscriber", sub.Addr, "error", err)
			}
		}
	}
}

func (c *Channel) clearPump() {
	c.pumpMu.Lock()
	c.pumpCancel = nil
	c.pumpDone = nil
	c.pumpMu.Unlock()
}

package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/Nat1anWasTaken/fortis/internal/domain"
	"github.com/Nat1anWasTaken/fortis/internal/ports"
)

// networkLoop owns the network side of a run: it drains the chunk queue
// into the streaming session, consumes transcript events into the log, and
// drives reconnection when the stream dies. It is the only goroutine that
// touches run.pending.
func (c *Controller) networkLoop(run *activeRun) {
	defer close(run.netDone)

	stream := run.currentStream()
	for {
		eventsDone := make(chan struct{})
		go c.consumeEvents(run, stream, eventsDone)

		c.pump(run, stream)
		_ = stream.Close()
		<-eventsDone

		if run.ctx.Err() != nil {
			return
		}
		if streamErr := stream.Err(); streamErr != nil {
			c.logger.Warn().Err(streamErr).Msg("stream disconnected")
		}

		next, ok := c.reconnect(run)
		if !ok {
			return
		}
		stream = next
	}
}

// pump moves chunks from the queue head to the stream until the stream
// dies, the run is cancelled, or the queue is closed. A chunk that fails to
// send is kept as pending and retried against the next stream.
func (c *Controller) pump(run *activeRun, stream ports.StreamingSession) {
	// Unblock the queue pop as soon as the stream terminates, even if no
	// audio is flowing (e.g. while paused).
	popCtx, cancel := context.WithCancel(run.ctx)
	defer cancel()
	go func() {
		select {
		case <-stream.Done():
			cancel()
		case <-popCtx.Done():
		}
	}()

	for {
		run.mu.Lock()
		pending := run.pending
		run.mu.Unlock()

		if pending == nil {
			chunk, err := run.queue.Pop(popCtx)
			if err != nil {
				return
			}
			pending = &chunk
			run.mu.Lock()
			run.pending = pending
			run.mu.Unlock()
		}
		c.metrics.QueueDepth.Set(float64(run.queue.Len()))

		if err := stream.Send(*pending); err != nil {
			c.logger.Debug().Err(err).Uint64("seq", pending.Seq).Msg("send failed, chunk retained for retry")
			return
		}

		run.mu.Lock()
		run.sentSeq = pending.Seq
		run.pending = nil
		run.mu.Unlock()
		c.metrics.ChunksSent.Inc()
	}
}

// consumeEvents applies transcript events to the log, stamping them with
// the capture session currently feeding the stream and the chunk range
// they cover.
func (c *Controller) consumeEvents(run *activeRun, stream ports.StreamingSession, done chan struct{}) {
	defer close(done)

	// A reopened stream numbers its transcript offsets from zero again,
	// while the capture session and the log's watermark survive the
	// reconnect. Rebase the stream's offsets on the committed end so the
	// reopen is a synchronization point, not a wall of rejected segments.
	base := c.transcript.Watermark()
	var session domain.CaptureSessionID
	var firstSeq uint64

	for event := range stream.Events() {
		current := run.currentSession()
		if current != session {
			session = current
			firstSeq = 0
		}
		event.Session = current
		event.Start += base
		event.End += base
		event.FirstSeq = firstSeq
		event.LastSeq = run.lastSentSeq()
		if event.Kind == domain.TranscriptKindFinal {
			// Text does not align with chunk boundaries; the chunk that
			// closed this segment can also open the next one.
			firstSeq = event.LastSeq
		}
		c.metrics.TranscriptEvents.WithLabelValues(string(event.Kind)).Inc()

		if err := c.transcript.Apply(event); err != nil {
			// Invariant check, not user-facing: an out-of-order segment
			// is dropped rather than corrupting the committed text.
			c.logger.Warn().Err(err).
				Str("kind", string(event.Kind)).
				Msg("transcript event rejected")
		}
	}
}

// reconnect attempts to reopen the streaming session with exponential
// backoff. Capture continues into the bounded queue during attempts, so at
// most the queue's time window of audio is lost. Auth rejection and
// exhausted attempts escalate to the Error state.
func (c *Controller) reconnect(run *activeRun) (ports.StreamingSession, bool) {
	resumeTo := c.State()
	if resumeTo != domain.SessionStateRecording && resumeTo != domain.SessionStatePaused {
		resumeTo = domain.SessionStateRecording
	}
	run.setResumeTo(resumeTo)
	c.setState(domain.SessionStateReconnecting, domain.ReasonDisconnected)

	for attempt := 0; attempt < c.cfg.Backoff.MaxAttempts; attempt++ {
		delay := c.cfg.Backoff.Delay(attempt)
		select {
		case <-run.ctx.Done():
			return nil, false
		case <-time.After(delay):
		}
		if c.State() == domain.SessionStateError {
			// A device failure escalated while we were backing off; the
			// run now belongs to Acknowledge.
			return nil, false
		}

		c.metrics.ReconnectAttempts.Inc()
		stream, err := c.provider.Open(run.ctx, c.cfg.Settings, c.cfg.Stream)
		if err == nil {
			run.setStream(stream)
			c.metrics.Reconnects.Inc()
			c.logger.Info().Int("attempt", attempt+1).Msg("stream reconnected")
			c.setState(run.resumeTarget(), domain.ReasonReconnected)
			return stream, true
		}

		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			c.failRun(run, domain.ErrorCodeAuth, err.Error(), domain.ReasonAuthRejected)
			return nil, false
		}
		c.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("reconnect attempt failed")
	}

	c.failRun(run, domain.ErrorCodeConnect, "reconnect attempts exhausted", domain.ReasonReconnectsExhausted)
	return nil, false
}

// watchRemovals escalates removal of the active device to the Error state.
// The streaming session is deliberately left open until the user returns to
// Idle.
func (c *Controller) watchRemovals(run *activeRun) {
	defer close(run.watchDone)

	for {
		select {
		case <-run.ctx.Done():
			return
		case id, ok := <-c.registry.Removals():
			if !ok {
				return
			}
			if id != run.currentDevice().ID {
				continue
			}
			c.logger.Error().Str("device", string(id)).Msg("active device removed")
			_ = run.currentCapture().Close()
			c.setErrorState(run, "device removed", domain.ReasonDeviceRemoved)
			c.sink.SessionError(domain.ErrorCodeDevice, "device removed")
			return
		}
	}
}

// failRun stops audio production and parks the run in the Error state; the
// streaming side has already terminated.
func (c *Controller) failRun(run *activeRun, code domain.ErrorCode, detail string, reason domain.StateReason) {
	_ = run.currentCapture().Close()
	c.setErrorState(run, detail, reason)
	c.sink.SessionError(code, detail)
}

package comfy

import (
	"context"
	"fmt"
	"time"

	"dhgen/internal/logging"
	"dhgen/internal/services"
)

// DefaultMonitorTimeout applies when Monitor is given no timeout.
const DefaultMonitorTimeout = 600 * time.Second

// Progress is a monitoring snapshot delivered to a ProgressFunc.
type Progress struct {
	JobID    string
	State    State
	Strategy string
	Node     string
	Value    float64
	Max      float64
	Elapsed  time.Duration
	// NodesDone counts nodes observed to have finished executing.
	NodesDone int
}

// Percent returns Value/Max as a percentage, or -1 when unknown.
func (p Progress) Percent() float64 {
	if p.Max <= 0 {
		return -1
	}
	return p.Value / p.Max * 100
}

// ProgressFunc receives progress snapshots. It must not block.
type ProgressFunc func(Progress)

type strategy int

const (
	strategyEvents strategy = iota
	strategyPoll
)

func (s strategy) String() string {
	if s == strategyEvents {
		return "events"
	}
	return "poll"
}

// fallbackReason says why the event strategy handed over to polling.
type fallbackReason int

const (
	fallbackNone fallbackReason = iota
	fallbackUnavailable
	fallbackReceiveTimeout
	fallbackStreamError
)

func (r fallbackReason) String() string {
	switch r {
	case fallbackUnavailable:
		return "event channel unavailable"
	case fallbackReceiveTimeout:
		return "no event within receive timeout"
	case fallbackStreamError:
		return "event channel failed"
	default:
		return "none"
	}
}

// monitorRun holds the state of one Monitor call.
type monitorRun struct {
	c        *Client
	job      *Job
	start    time.Time
	deadline time.Time
	progress ProgressFunc

	strategy strategy
	stream   *eventStream
	lastPoll time.Time
	// heard is when the last event for this job arrived. Traffic for other
	// jobs does not move it.
	heard    time.Time
	nodes    map[string]string
	current  string
}

// Monitor tracks job until it reaches a terminal state or timeout elapses,
// measured from the call. It listens to the event channel when one is open
// and polls history and queue otherwise. When no event for job arrives within
// the receive timeout a status poll runs, repeated every poll interval while
// the job stays quiet, and listening resumes after each poll; a failed channel
// switches to polling for the remainder of the call. COMPLETED, FAILED and
// NOT_FOUND return as soon as they are observed, otherwise TIMED_OUT is
// returned at the deadline. The error is non-nil only when ctx ends first;
// the remote job is never cancelled.
func (c *Client) Monitor(ctx context.Context, job *Job, timeout time.Duration, progress ProgressFunc) (State, error) {
	if timeout <= 0 {
		timeout = DefaultMonitorTimeout
	}
	m := &monitorRun{
		c:        c,
		job:      job,
		start:    time.Now(),
		progress: progress,
		stream:   c.currentStream(),
		heard:    time.Now(),
		nodes:    make(map[string]string),
	}
	m.deadline = m.start.Add(timeout)
	job.Deadline = m.deadline
	if job.StartedAt.IsZero() {
		job.StartedAt = m.start
	}

	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, c.logger)

	if m.stream == nil {
		m.fallback(fallbackUnavailable)
	}

	for {
		if err := ctx.Err(); err != nil {
			return job.State, fmt.Errorf("monitor job %s: %w", job.ID, err)
		}
		if !time.Now().Before(m.deadline) {
			job.advance(StateTimedOut)
			logger.Info("job monitoring deadline reached",
				logging.Duration("timeout", timeout),
				logging.String("last_state", string(job.State)))
			return StateTimedOut, nil
		}

		var terminal State
		switch m.strategy {
		case strategyEvents:
			var reason fallbackReason
			terminal, reason = m.listen(ctx)
			if terminal == "" && reason != fallbackNone {
				m.fallback(reason)
			}
		case strategyPoll:
			terminal = m.poll(ctx)
		}
		if terminal != "" {
			job.advance(terminal)
			logger.Info("job reached terminal state",
				logging.String("state", string(terminal)),
				logging.String("strategy", m.strategy.String()),
				logging.Duration("elapsed", time.Since(m.start)))
			return terminal, nil
		}
	}
}

// fallback hands control to the poll strategy.
func (m *monitorRun) fallback(reason fallbackReason) {
	switch reason {
	case fallbackStreamError:
		err := m.stream.err
		m.stream = nil
		logging.WarnWithContext(m.c.logger, "event channel lost, polling for job status", "monitor_fallback",
			logging.String(logging.FieldJobID, m.job.ID),
			logging.String("reason", reason.String()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the server's WebSocket endpoint"),
			logging.String(logging.FieldImpact, "progress detail unavailable; status refreshed every poll interval"))
	case fallbackUnavailable:
		m.c.logger.Debug("no event channel, polling for job status",
			logging.String(logging.FieldJobID, m.job.ID))
	}
	m.strategy = strategyPoll
}

// nextPoll is when the event strategy hands over to a status poll: one
// receive timeout after the job was last heard from, and never sooner than
// one poll interval after the previous poll.
func (m *monitorRun) nextPoll() time.Time {
	next := m.heard.Add(m.c.receiveTimeout)
	if !m.lastPoll.IsZero() {
		if spaced := m.lastPoll.Add(m.c.pollInterval); spaced.After(next) {
			next = spaced
		}
	}
	return next
}

// listen waits for one message or until a status poll is due.
func (m *monitorRun) listen(ctx context.Context) (State, fallbackReason) {
	wait := time.Until(m.nextPoll())
	if remaining := time.Until(m.deadline); remaining < wait {
		wait = remaining
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", fallbackNone
	case <-timer.C:
		if !time.Now().Before(m.deadline) {
			return "", fallbackNone
		}
		return "", fallbackReceiveTimeout
	case raw, ok := <-m.stream.messages:
		if !ok {
			return "", fallbackStreamError
		}
		ev, err := parseEvent(raw)
		if err != nil {
			m.c.logger.Debug("ignoring undecodable event", logging.Error(err))
			return "", fallbackNone
		}
		return m.apply(ev), fallbackNone
	}
}

// apply folds one event into the run and returns a terminal state if the
// event ends the job.
func (m *monitorRun) apply(ev Event) State {
	ours := ev.JobID == m.job.ID
	if ours {
		m.heard = time.Now()
	}
	switch ev.Type {
	case "executing":
		if !ours {
			return ""
		}
		if ev.Idle {
			return StateCompleted
		}
		m.markNode(ev.Node)
		m.job.advance(StateRunning)
		m.report(ev.Node, 0, 0)
	case "execution_start":
		if ours {
			m.job.advance(StateRunning)
			m.report("", 0, 0)
		}
	case "executed", "execution_cached":
		if ours && ev.Node != "" {
			m.nodes[ev.Node] = "completed"
		}
	case "execution_success":
		if ours {
			return StateCompleted
		}
	case "progress":
		if ours || ev.JobID == "" {
			m.report(ev.Node, ev.Value, ev.Max)
		}
	case "execution_error", "error":
		if ours || (ev.Type == "error" && ev.JobID == "") {
			m.job.Failure = ev.Message
			if m.job.Failure == "" {
				m.job.Failure = "workflow execution failed"
			}
			return StateFailed
		}
	}
	return ""
}

func (m *monitorRun) markNode(node string) {
	if m.current != "" && m.current != node {
		m.nodes[m.current] = "completed"
	}
	m.current = node
	m.nodes[node] = "executing"
}

// poll performs one status query, sleeping first when the previous query is
// less than one interval old. Transport errors are treated as transient.
func (m *monitorRun) poll(ctx context.Context) State {
	if !m.lastPoll.IsZero() {
		next := m.lastPoll.Add(m.c.pollInterval)
		if next.After(m.deadline) {
			next = m.deadline
		}
		if wait := time.Until(next); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ""
			case <-timer.C:
			}
		}
		if !time.Now().Before(m.deadline) {
			return ""
		}
	}

	state, err := m.c.QueryStatus(ctx, m.job.ID)
	m.lastPoll = time.Now()
	if m.stream != nil {
		m.strategy = strategyEvents
	}
	if err != nil {
		m.c.logger.Debug("status poll failed", logging.String(logging.FieldJobID, m.job.ID), logging.Error(err))
		return ""
	}
	switch state {
	case StateCompleted, StateNotFound:
		return state
	case StateRunning, StatePending:
		m.job.advance(state)
		m.report("", 0, 0)
	}
	return ""
}

func (m *monitorRun) report(node string, value, maxValue float64) {
	if m.progress == nil {
		return
	}
	done := 0
	for _, status := range m.nodes {
		if status == "completed" {
			done++
		}
	}
	m.progress(Progress{
		JobID:     m.job.ID,
		State:     m.job.State,
		Strategy:  m.strategy.String(),
		Node:      node,
		Value:     value,
		Max:       maxValue,
		Elapsed:   time.Since(m.start),
		NodesDone: done,
	})
}

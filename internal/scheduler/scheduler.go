// Package scheduler implements the volume move runner: admission control,
// bounded concurrent dispatch, and per-job polling until a terminal state.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jehertzi/netapp-eng-vol-moves/internal/ontap"
)

// ErrDestinationUnhealthy is returned when the pre-flight health check
// fails and the run aborts before dispatching anything.
var ErrDestinationUnhealthy = errors.New("destination aggregate is not healthy")

// Config controls one scheduler run.
type Config struct {
	Destination       string
	MaxConcurrent     int
	PollInterval      time.Duration
	Timeout           time.Duration // per job, dispatch to terminal state
	ProgressHeartbeat time.Duration // log stalled progress at least this often
	CutoverAction     string
	CutoverWindow     int // seconds
	IgnoreHealthCheck bool
	CheckDuplicates   bool
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 24 * time.Hour
	}
	if c.ProgressHeartbeat <= 0 {
		c.ProgressHeartbeat = 5 * time.Minute
	}
	if c.CutoverAction == "" {
		c.CutoverAction = "retry"
	}
	if c.CutoverWindow <= 0 {
		c.CutoverWindow = 30
	}
	return c
}

// Scheduler owns all mutable state for one run. Each run constructs its
// own Scheduler with an injected control plane; there are no globals.
type Scheduler struct {
	cp  ontap.ControlPlane
	cfg Config
	log zerolog.Logger

	runID string

	mu        sync.Mutex
	startedAt time.Time
	total     int
	pending   []string
	active    map[string]*Job
	completed map[string]*Job
	order     []string // completion order
}

// New creates a scheduler for one run.
func New(cp ontap.ControlPlane, cfg Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cp:        cp,
		cfg:       cfg.withDefaults(),
		log:       log,
		runID:     uuid.New().String(),
		active:    make(map[string]*Job),
		completed: make(map[string]*Job),
	}
}

// RunID identifies this run in logs and the status API.
func (s *Scheduler) RunID() string { return s.runID }

// Run processes the volume list to completion. It returns only when
// every volume has a terminal outcome recorded, or when ctx is canceled,
// in which case workers are joined first and undispatched volumes are
// recorded as failed. An empty list is an immediate no-op.
func (s *Scheduler) Run(ctx context.Context, volumes []string) error {
	s.mu.Lock()
	s.startedAt = time.Now()
	s.total = len(volumes)
	s.pending = append([]string(nil), volumes...)
	s.mu.Unlock()

	if len(volumes) == 0 {
		return nil
	}

	if !s.cfg.IgnoreHealthCheck {
		healthy, err := s.cp.CheckDestinationHealth(ctx, s.cfg.Destination)
		if err != nil {
			s.failAllPending("destination health check failed: " + err.Error())
			return fmt.Errorf("checking destination %s: %w", s.cfg.Destination, err)
		}
		if !healthy {
			s.log.Error().Str("destination", s.cfg.Destination).
				Msg("destination is not available, aborting all moves (use --ignore-health-check to bypass)")
			s.failAllPending("destination " + s.cfg.Destination + " failed health check")
			return ErrDestinationUnhealthy
		}
	}

	inFlight := make(map[string]bool)
	if s.cfg.CheckDuplicates {
		moves, err := s.cp.ListInFlight(ctx)
		if err != nil {
			// Best-effort: a listing failure must not abort the run.
			s.log.Warn().Err(err).Msg("could not list in-flight moves, skipping duplicate detection")
		}
		for _, m := range moves {
			inFlight[m.Volume] = true
		}
	}

	s.log.Info().Str("run_id", s.runID).Int("volumes", len(volumes)).
		Str("destination", s.cfg.Destination).Int("max_concurrent", s.cfg.MaxConcurrent).
		Msg("starting volume migration")

	queue := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.MaxConcurrent; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for vol := range queue {
				s.runOne(ctx, id, vol, inFlight)
			}
		}(i + 1)
	}

feed:
	for _, vol := range volumes {
		select {
		case queue <- vol:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		s.failAllPending("interrupted before dispatch; not started")
		s.log.Warn().Msg("run interrupted; in-progress moves continue on the cluster")
		return err
	}
	return nil
}

// runOne carries a single volume from dispatch to a terminal state. A
// panic here is recorded as that volume's failure rather than taking
// down the other workers.
func (s *Scheduler) runOne(ctx context.Context, worker int, vol string, inFlight map[string]bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Int("worker", worker).Str("volume", vol).
				Interface("panic", r).Msg("worker panic recovered")
			s.record(vol, "", StateFailed, fmt.Sprintf("internal error: %v", r))
		}
	}()

	s.mu.Lock()
	s.removePendingLocked(vol)
	s.mu.Unlock()

	if inFlight[vol] {
		s.log.Warn().Str("volume", vol).Msg("volume already has an active move on the cluster")
		s.record(vol, "", StateFailed, "move already in flight on cluster")
		return
	}
	if ctx.Err() != nil {
		s.record(vol, "", StateFailed, "interrupted before dispatch; not started")
		return
	}

	s.log.Info().Int("worker", worker).Str("volume", vol).
		Str("destination", s.cfg.Destination).Msg("starting move")
	handle, err := s.cp.StartMove(ctx, vol, s.cfg.Destination, ontap.MoveOptions{
		CutoverAction: s.cfg.CutoverAction,
		CutoverWindow: s.cfg.CutoverWindow,
	})
	if err != nil {
		// Scoped to this volume; the worker immediately moves on to the
		// next pending volume, so no concurrency slot is wasted.
		s.log.Error().Err(err).Str("volume", vol).Msg("failed to initiate move")
		s.record(vol, "", StateFailed, "dispatch failed: "+err.Error())
		return
	}

	job := &Job{
		Volume:    vol,
		Handle:    handle,
		State:     StateDispatched,
		StartedAt: time.Now(),
	}
	s.mu.Lock()
	s.active[vol] = job
	s.mu.Unlock()
	s.log.Info().Str("volume", vol).Str("job", string(handle)).Msg("move dispatched")

	s.pollUntilDone(ctx, job)
}

// pollUntilDone drives the per-job state machine:
// Dispatched -> Polling -> {Succeeded | Failed | TimedOut}.
func (s *Scheduler) pollUntilDone(ctx context.Context, job *Job) {
	deadline := job.StartedAt.Add(s.cfg.Timeout)
	lastPercent := -1
	var lastProgressLog time.Time

	for {
		if time.Now().After(deadline) {
			s.log.Error().Str("volume", job.Volume).Dur("timeout", s.cfg.Timeout).
				Msg("move timed out; the move itself is not canceled on the cluster")
			s.finish(job, StateTimedOut, fmt.Sprintf("no terminal state within %s", s.cfg.Timeout))
			return
		}

		state, percent, err := s.cp.PollJob(ctx, job.Handle)
		now := time.Now()

		var class Class
		if err != nil {
			if ctx.Err() != nil {
				s.finish(job, StateFailed, "interrupted while polling; move continues on cluster")
				return
			}
			// Transient by policy: the remote move may be healthy even when
			// a poll fails, so errors accrue toward the timeout instead of
			// failing the job.
			s.log.Warn().Err(err).Str("volume", job.Volume).Msg("poll failed")
			class = ClassTransient
		} else {
			class = Classify(state)
		}

		s.mu.Lock()
		if job.State == StateDispatched {
			job.State = StatePolling
		}
		if err == nil {
			job.Percent = percent
		}
		job.LastPolledAt = now
		s.mu.Unlock()

		switch class {
		case ClassSucceeded:
			s.log.Info().Str("volume", job.Volume).Msg("move completed successfully")
			s.finish(job, StateSucceeded, "")
			return
		case ClassFailed:
			s.log.Error().Str("volume", job.Volume).Str("state", state).Msg("move failed")
			s.finish(job, StateFailed, fmt.Sprintf("cluster reported state %q", state))
			return
		}

		if err == nil && (percent != lastPercent || now.Sub(lastProgressLog) >= s.cfg.ProgressHeartbeat) {
			s.log.Info().Str("volume", job.Volume).Int("percent", percent).
				Str("state", state).Msg("move progress")
			lastPercent = percent
			lastProgressLog = now
		}

		select {
		case <-ctx.Done():
			s.finish(job, StateFailed, "interrupted while polling; move continues on cluster")
			return
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

// finish moves an active job to the completed set. Idempotent so that a
// slot is freed exactly once no matter which path gets here first.
func (s *Scheduler) finish(job *Job, state State, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.completed[job.Volume]; done {
		return
	}
	job.State = state
	job.Reason = reason
	job.FinishedAt = time.Now()
	delete(s.active, job.Volume)
	s.completed[job.Volume] = job
	s.order = append(s.order, job.Volume)
}

// record writes a terminal outcome for a volume that never entered the
// active set (dispatch failure, duplicate, interrupt before start).
func (s *Scheduler) record(vol string, handle ontap.JobHandle, state State, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.completed[vol]; done {
		return
	}
	now := time.Now()
	s.completed[vol] = &Job{
		Volume:     vol,
		Handle:     handle,
		State:      state,
		Reason:     reason,
		StartedAt:  now,
		FinishedAt: now,
	}
	s.order = append(s.order, vol)
}

// failAllPending records a failure outcome for every volume still pending.
func (s *Scheduler) failAllPending(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, vol := range s.pending {
		if _, done := s.completed[vol]; done {
			continue
		}
		s.completed[vol] = &Job{
			Volume:     vol,
			State:      StateFailed,
			Reason:     reason,
			StartedAt:  now,
			FinishedAt: now,
		}
		s.order = append(s.order, vol)
	}
	s.pending = nil
}

func (s *Scheduler) removePendingLocked(vol string) {
	for i, v := range s.pending {
		if v == vol {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// Snapshot is a point-in-time copy of scheduler state for reporting.
type Snapshot struct {
	RunID     string      `json:"run_id"`
	Total     int         `json:"total"`
	Pending   int         `json:"pending"`
	Active    []JobStatus `json:"active"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// Done reports whether every volume has reached a terminal outcome.
func (sn Snapshot) Done() bool {
	return sn.Pending == 0 && len(sn.Active) == 0
}

// Snapshot copies the current state under the lock. Safe to call
// concurrently with a running scheduler.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn := Snapshot{
		RunID:   s.runID,
		Total:   s.total,
		Pending: len(s.pending),
		Active:  make([]JobStatus, 0, len(s.active)),
	}
	for _, job := range s.active {
		sn.Active = append(sn.Active, job.status())
	}
	sort.Slice(sn.Active, func(i, j int) bool { return sn.Active[i].Volume < sn.Active[j].Volume })
	for _, job := range s.completed {
		if job.State == StateSucceeded {
			sn.Succeeded++
		} else {
			sn.Failed++
		}
	}
	return sn
}

// Results returns all terminal outcomes in completion order.
func (s *Scheduler) Results() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.order))
	for _, vol := range s.order {
		out = append(out, s.completed[vol].status())
	}
	return out
}

// StartedAt returns when Run began.
func (s *Scheduler) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Package report aggregates scheduler state into periodic status blocks
// and the final run summary. It only ever reads snapshots; it never
// mutates scheduler state.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jehertzi/netapp-eng-vol-moves/internal/scheduler"
)

// Failure identifies one volume that did not complete successfully.
type Failure struct {
	Volume string          `json:"volume"`
	State  scheduler.State `json:"state"`
	Reason string          `json:"reason,omitempty"`
}

// Summary is the final accounting for a run.
type Summary struct {
	RunID            string        `json:"run_id"`
	Total            int           `json:"total"`
	Succeeded        int           `json:"succeeded"`
	Failed           []Failure     `json:"failed"`
	Duration         time.Duration `json:"duration"`
	AveragePerVolume time.Duration `json:"average_per_volume"`
}

// AllSucceeded reports whether every volume completed successfully. This
// drives the process exit code.
func (s Summary) AllSucceeded() bool {
	return len(s.Failed) == 0 && s.Succeeded == s.Total
}

// BuildSummary assembles the final summary from terminal results. Pure:
// calling it twice over the same results yields identical summaries.
func BuildSummary(runID string, results []scheduler.JobStatus, started, ended time.Time) Summary {
	sum := Summary{
		RunID:    runID,
		Total:    len(results),
		Duration: ended.Sub(started),
	}
	for _, r := range results {
		if r.State == scheduler.StateSucceeded {
			sum.Succeeded++
			continue
		}
		sum.Failed = append(sum.Failed, Failure{
			Volume: r.Volume,
			State:  r.State,
			Reason: r.Reason,
		})
	}
	if sum.Total > 0 {
		sum.AveragePerVolume = sum.Duration / time.Duration(sum.Total)
	}
	return sum
}

// Reporter emits a periodic status block while a run is in progress.
type Reporter struct {
	log      zerolog.Logger
	interval time.Duration
}

// New creates a reporter. interval defaults to 60s.
func New(log zerolog.Logger, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Reporter{log: log, interval: interval}
}

// Run logs a status block every interval until ctx is canceled or the
// run reaches a terminal state. snap must be safe to call concurrently
// with the scheduler; scheduler.Snapshot is.
func (r *Reporter) Run(ctx context.Context, snap func() scheduler.Snapshot) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sn := snap()
			r.LogStatus(sn)
			if sn.Done() {
				return
			}
		}
	}
}

// LogStatus writes one status block for a snapshot.
func (r *Reporter) LogStatus(sn scheduler.Snapshot) {
	completed := sn.Succeeded + sn.Failed
	r.log.Info().
		Int("total", sn.Total).
		Int("completed", completed).
		Int("in_progress", len(sn.Active)).
		Int("waiting", sn.Pending).
		Int("succeeded", sn.Succeeded).
		Int("failed", sn.Failed).
		Msg("--- current status ---")
	for _, job := range sn.Active {
		r.log.Info().Str("volume", job.Volume).Int("percent", job.Percent).
			Str("state", string(job.State)).Msg("currently moving")
	}
}

// LogSummary writes the final summary block.
func LogSummary(log zerolog.Logger, sum Summary) {
	log.Info().Msg("====== VOLUME MIGRATION SUMMARY ======")
	log.Info().
		Str("run_id", sum.RunID).
		Int("total", sum.Total).
		Int("succeeded", sum.Succeeded).
		Int("failed", len(sum.Failed)).
		Str("duration", formatDuration(sum.Duration)).
		Str("average_per_volume", sum.AveragePerVolume.Round(time.Second).String()).
		Msg("result")
	for _, f := range sum.Failed {
		log.Error().Str("volume", f.Volume).Str("state", string(f.State)).
			Str("reason", f.Reason).Msg("failed volume")
	}
}

// formatDuration renders HH:MM:SS like the status blocks operators are
// used to reading in the migration log.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Command volmove bulk-migrates ONTAP volumes to a destination aggregate
// with a bounded number of concurrent moves.
//
// Exit codes: 0 all volumes moved, 1 at least one failure or a fatal
// setup error, 130 interrupted by the operator (in-progress moves keep
// running on the cluster).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jehertzi/netapp-eng-vol-moves/internal/api"
	"github.com/jehertzi/netapp-eng-vol-moves/internal/config"
	"github.com/jehertzi/netapp-eng-vol-moves/internal/inventory"
	"github.com/jehertzi/netapp-eng-vol-moves/internal/logging"
	"github.com/jehertzi/netapp-eng-vol-moves/internal/ontap"
	"github.com/jehertzi/netapp-eng-vol-moves/internal/report"
	"github.com/jehertzi/netapp-eng-vol-moves/internal/scheduler"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	for _, arg := range args {
		if arg == "--version" || arg == "-v" {
			fmt.Printf("volmove %s (commit: %s, built: %s)\n", version, commit, date)
			return exitOK
		}
	}

	cfg, err := config.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFailure
	}

	log, closeLog, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFailure
	}
	defer closeLog()

	volumes := cfg.Volumes
	if cfg.VolumeList != "" {
		fromFile, err := inventory.Load(cfg.VolumeList)
		if err != nil {
			log.Error().Err(err).Msg("could not read volume list")
			return exitFailure
		}
		volumes = append(fromFile, volumes...)
	}
	volumes = inventory.Merge(volumes)
	if len(volumes) == 0 {
		log.Error().Msg("no volumes specified for migration")
		return exitFailure
	}

	log.Info().
		Str("cluster", cfg.Cluster).
		Str("destination", cfg.DestAggr).
		Int("volumes", len(volumes)).
		Int("max_concurrent", cfg.MaxConcurrent).
		Str("cutover_action", cfg.CutoverAction).
		Int("cutover_window", cfg.CutoverWindow).
		Int("timeout", cfg.Timeout).
		Str("dispatch", cfg.Dispatch).
		Msg("preparing volume migration")

	cp := ontap.NewControlPlane(ontap.Connection{
		Cluster:  cfg.Cluster,
		Username: cfg.Username,
		Password: cfg.Password,
		Insecure: cfg.Insecure,
	}, cfg.Dispatch)

	sched := scheduler.New(cp, scheduler.Config{
		Destination:       cfg.DestAggr,
		MaxConcurrent:     cfg.MaxConcurrent,
		PollInterval:      cfg.PollIntervalDuration(),
		Timeout:           cfg.TimeoutDuration(),
		CutoverAction:     cfg.CutoverAction,
		CutoverWindow:     cfg.CutoverWindow,
		IgnoreHealthCheck: cfg.IgnoreHealthCheck,
		CheckDuplicates:   cfg.CheckDuplicates,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reporterCtx, stopReporter := context.WithCancel(context.Background())
	defer stopReporter()
	go report.New(log, cfg.StatusIntervalDuration()).Run(reporterCtx, sched.Snapshot)

	var statusSrv *http.Server
	if cfg.Listen != "" {
		statusSrv = &http.Server{
			Addr: cfg.Listen,
			Handler: api.NewRouter(&api.Server{
				Snapshot: sched.Snapshot,
				Jobs:     sched.Results,
			}),
		}
		go func() {
			log.Info().Str("listen", cfg.Listen).Msg("status server listening")
			if err := statusSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status server error")
			}
		}()
	}

	runErr := sched.Run(ctx, volumes)
	stopReporter()

	summary := report.BuildSummary(sched.RunID(), sched.Results(), sched.StartedAt(), time.Now())
	report.LogSummary(log, summary)

	if statusSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("status server shutdown")
		}
		cancel()
	}

	switch {
	case runErr != nil && ctx.Err() != nil:
		log.Warn().Msg("operation interrupted by user; in-progress volume moves continue on the cluster")
		return exitInterrupted
	case runErr != nil:
		log.Error().Err(runErr).Msg("migration aborted")
		return exitFailure
	case !summary.AllSucceeded():
		return exitFailure
	default:
		return exitOK
	}
}

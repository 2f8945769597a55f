package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	distribution "github.com/shabbywu/distribution-go"
	"github.com/shabbywu/distribution-go/manifest"
	"github.com/shabbywu/distribution-go/tag"
)

var ErrInvalidSyncType = errors.New("distctl: sync step type must be \"image\" or \"repository\"")

var syncOpts struct {
	confFile string
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "mirror images according to a config file",
}

var syncServerCmd = &cobra.Command{
	Use:   "server",
	Short: "run continuously, mirroring on each step's cron schedule",
	Args:  cobra.ExactArgs(0),
	RunE:  runSyncServer,
}

var syncOnceCmd = &cobra.Command{
	Use:   "once",
	Short: "run every sync step once, ignoring schedules",
	Args:  cobra.ExactArgs(0),
	RunE:  runSyncOnce,
}

var syncCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "report which images are out of sync without copying",
	Args:  cobra.ExactArgs(0),
	RunE:  runSyncCheck,
}

func init() {
	syncCmd.PersistentFlags().StringVarP(&syncOpts.confFile, "config", "c", "", "Config file")
	syncCmd.MarkPersistentFlagRequired("config")
	syncCmd.AddCommand(syncServerCmd)
	syncCmd.AddCommand(syncOnceCmd)
	syncCmd.AddCommand(syncCheckCmd)
}

func loadSyncConfig() (*Config, error) {
	f, err := os.Open(syncOpts.confFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ConfigLoadReader(f)
}

// syncRunner holds the shared state each sync step needs: credentials
// and a bounded-concurrency gate. The retrying copy lives in processRef.
type syncRunner struct {
	creds map[string]ConfigHost
	sem   *semaphore.Weighted
}

func newSyncRunner(cfg *Config) *syncRunner {
	return &syncRunner{
		creds: credsFor(cfg),
		sem:   semaphore.NewWeighted(int64(cfg.Defaults.Parallel)),
	}
}

// runSyncOnce processes every step once, ignoring cron schedules, per
// cmd/regsync/root.go's runOnce.
func runSyncOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadSyncConfig()
	if err != nil {
		return err
	}
	runner := newSyncRunner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifyInterrupt(cancel)

	var wg sync.WaitGroup
	var mainErr error
	var mu sync.Mutex
	for _, step := range cfg.Sync {
		step := step
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runner.process(ctx, step, "copy"); err != nil {
				mu.Lock()
				if mainErr == nil {
					mainErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return mainErr
}

// runSyncServer stays running, firing each step on its own cron schedule
// or fixed interval, per cmd/regsync/root.go's runServer.
func runSyncServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadSyncConfig()
	if err != nil {
		return err
	}
	runner := newSyncRunner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	var wg sync.WaitGroup
	for _, step := range cfg.Sync {
		step := step
		sched := step.Schedule
		if sched == "" && step.Interval != 0 {
			sched = "@every " + step.Interval.String()
		}
		if sched == "" {
			log.WithFields(logrus.Fields{"source": step.Source, "target": step.Target}).Error("no schedule or interval, skipping")
			continue
		}
		if _, err := c.AddFunc(sched, func() {
			wg.Add(1)
			defer wg.Done()
			if err := runner.process(ctx, step, "copy"); err != nil {
				log.WithFields(logrus.Fields{"source": step.Source, "target": step.Target, "error": err}).Error("sync step failed")
			}
		}); err != nil {
			return fmt.Errorf("scheduling %q: %w", sched, err)
		}
	}

	c.Start()
	notifyInterrupt(func() {
		c.Stop()
		cancel()
	})
	<-ctx.Done()
	wg.Wait()
	return nil
}

// runSyncCheck performs a dry run, logging what would be copied.
func runSyncCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadSyncConfig()
	if err != nil {
		return err
	}
	runner := newSyncRunner(cfg)
	ctx := context.Background()
	var mainErr error
	for _, step := range cfg.Sync {
		if err := runner.process(ctx, step, "check"); err != nil && mainErr == nil {
			mainErr = err
		}
	}
	return mainErr
}

func notifyInterrupt(onSignal func()) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Debug("interrupt received, stopping")
		onSignal()
	}()
}

// process runs one config step, expanding a "repository" step into one
// processRef call per tag, per cmd/regsync/root.go's ConfigSync.process.
func (r *syncRunner) process(ctx context.Context, step ConfigSync, action string) error {
	src, err := distribution.ParseRef(step.Source)
	if err != nil {
		return fmt.Errorf("parsing source %q: %w", step.Source, err)
	}
	tgt, err := distribution.ParseRef(step.Target)
	if err != nil {
		return fmt.Errorf("parsing target %q: %w", step.Target, err)
	}

	srcClient, err := clientFor(src.Registry, r.creds)
	if err != nil {
		return err
	}
	tgtClient, err := clientFor(tgt.Registry, r.creds)
	if err != nil {
		return err
	}

	switch step.Type {
	case "repository":
		tags, err := (tag.Resource{Repo: src.Repository, Client: srcClient, APIBaseURL: srcClient.APIBaseURL}).List()
		if err != nil {
			return fmt.Errorf("listing source tags: %w", err)
		}
		for _, t := range tags {
			src.Tag, src.Digest = t, ""
			tgt.Tag, tgt.Digest = t, ""
			if err := r.processRef(ctx, srcClient, tgtClient, src, tgt, action); err != nil {
				return err
			}
		}
		return nil
	case "image":
		return r.processRef(ctx, srcClient, tgtClient, src, tgt, action)
	default:
		return ErrInvalidSyncType
	}
}

// processRef compares source and target manifest digests, skipping the
// copy when they already match, then performs a semaphore-bounded,
// backoff-retried copy, per cmd/regsync/root.go's processRef (stripped of
// rate-limit and backup-template handling, which this module's Non-goals
// exclude).
func (r *syncRunner) processRef(ctx context.Context, srcClient, tgtClient *distribution.Client, src, tgt distribution.Ref, action string) error {
	srcDesc, err := (manifest.Ref{Repo: src.Repository, Reference: src.Reference(), Client: srcClient, APIBaseURL: srcClient.APIBaseURL}).GetMetadata(manifest.MediaTypeSchema2)
	if err != nil {
		return fmt.Errorf("looking up source manifest: %w", err)
	}
	tgtDesc, err := (manifest.Ref{Repo: tgt.Repository, Reference: tgt.Reference(), Client: tgtClient, APIBaseURL: tgtClient.APIBaseURL}).GetMetadata(manifest.MediaTypeSchema2)
	if err == nil && srcDesc.Digest == tgtDesc.Digest {
		log.WithFields(logrus.Fields{"source": src.CommonName(), "target": tgt.CommonName()}).Debug("already in sync")
		return nil
	}

	log.WithFields(logrus.Fields{"source": src.CommonName(), "target": tgt.CommonName()}).Info("sync needed")
	if action == "check" {
		return nil
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)

	op := func() error {
		return copyImage(srcClient, tgtClient, src.Repository, src.Reference(), tgt.Repository, tgt.Reference())
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("copying %s -> %s: %w", src.CommonName(), tgt.CommonName(), err)
	}
	log.WithFields(logrus.Fields{"source": src.CommonName(), "target": tgt.CommonName()}).Info("sync complete")
	return nil
}

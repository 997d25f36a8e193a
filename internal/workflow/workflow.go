// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package workflow orchestrates a research batch: load the input list,
// run every document through the analysis pipeline on a bounded worker
// pool, checkpoint progress, then validate the batch and build the
// comparative report.
package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"policyscan/internal/analysis"
	"policyscan/internal/compare"
	"policyscan/internal/observability"
	"policyscan/internal/parallel"
	"policyscan/internal/validate"
)

// DefaultCheckpointInterval saves a checkpoint every N completions.
const DefaultCheckpointInterval = 5

// Fetcher retrieves raw document text for one source.
type Fetcher interface {
	Fetch(ctx context.Context, source string) (string, error)
}

// Config tunes one batch run.
type Config struct {
	Workers            int
	CheckpointDir      string
	CheckpointInterval int
	Resume             bool
	Force              bool
	// Strict promotes validation warnings to errors and drops partial
	// records from the comparative report.
	Strict bool
	// Validate tunes the final batch validation; Strict above overrides
	// its Strict field.
	Validate validate.BatchOptions
	// Compare tunes the comparative report. A zero QuotesPerTheme
	// falls back to the compare package default.
	Compare compare.Config
}

// Outcome is everything a finished batch produces.
type Outcome struct {
	RunID      string               `json:"run_id"`
	Records    []*analysis.Record   `json:"records"`
	Failed     map[string]string    `json:"failed,omitempty"`
	Skipped    []string             `json:"skipped,omitempty"`
	Validation validate.BatchResult `json:"validation"`
	Report     *compare.Report      `json:"report,omitempty"`
}

// Runner drives batches through a document processor.
type Runner struct {
	processor parallel.Processor
	fetcher   Fetcher
	observer  *observability.StandardObserver
	cfg       Config
}

// NewRunner wires a batch runner.
func NewRunner(processor parallel.Processor, fetcher Fetcher, observer *observability.StandardObserver, cfg Config) *Runner {
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = DefaultCheckpointInterval
	}
	return &Runner{processor: processor, fetcher: fetcher, observer: observer, cfg: cfg}
}

// fetchingProcessor resolves each job's source to text before handing
// it to the analysis pipeline, so fetch latency shares the pool's
// concurrency budget with inference.
type fetchingProcessor struct {
	fetcher Fetcher
	inner   parallel.Processor
}

func (p *fetchingProcessor) AnalyzeDocument(ctx context.Context, appName, url, text string, force bool) (*analysis.Record, error) {
	if text == "" {
		fetched, err := p.fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", url, err)
		}
		text = fetched
	}
	return p.inner.AnalyzeDocument(ctx, appName, url, text, force)
}

// Run executes the batch. With Resume set, apps recorded as completed in
// the latest checkpoint are skipped; their records are still served from
// the cache by a later analyze call, so skipping never loses data.
func (r *Runner) Run(ctx context.Context, apps []App) (*Outcome, error) {
	if len(apps) == 0 {
		return nil, fmt.Errorf("no apps to analyze")
	}

	outcome := &Outcome{
		RunID:  uuid.NewString(),
		Failed: make(map[string]string),
	}

	done := make(map[string]bool)
	if r.cfg.Resume && r.cfg.CheckpointDir != "" {
		cp, err := LatestCheckpoint(r.cfg.CheckpointDir)
		if err != nil {
			return nil, err
		}
		if cp != nil {
			outcome.RunID = cp.RunID
			for _, name := range cp.Completed {
				done[name] = true
			}
		}
	}

	var finish func(bool, map[string]interface{})
	if r.observer != nil {
		finish = r.observer.StartTiming("workflow", "batch_analyze", outcome.RunID)
	}

	processor := r.processor
	if r.fetcher != nil {
		processor = &fetchingProcessor{fetcher: r.fetcher, inner: r.processor}
	}
	pool := parallel.NewWorkerPool(r.cfg.Workers, processor, r.observer)
	pool.Start()

	pending := 0
	go func() {
		for _, app := range apps {
			if done[app.AppName] {
				continue
			}
			pool.Submit(&parallel.Job{
				JobID:   fmt.Sprintf("%s/%s", outcome.RunID, app.AppName),
				AppName: app.AppName,
				URL:     app.URL,
				Force:   r.cfg.Force,
			})
		}
		pool.Close()
	}()
	for _, app := range apps {
		if done[app.AppName] {
			outcome.Skipped = append(outcome.Skipped, app.AppName)
		} else {
			pending++
		}
	}

	checkpoint := &Checkpoint{RunID: outcome.RunID, Total: len(apps)}
	checkpoint.Completed = append(checkpoint.Completed, outcome.Skipped...)

	collected := 0
	go func() {
		pool.Stop()
	}()
	for res := range pool.Results() {
		collected++
		if res.Error != nil {
			outcome.Failed[res.AppName] = res.Error.Error()
			checkpoint.Failed = append(checkpoint.Failed, res.AppName)
		} else {
			outcome.Records = append(outcome.Records, res.Record)
			checkpoint.Completed = append(checkpoint.Completed, res.AppName)
		}

		if r.cfg.CheckpointDir != "" && collected%r.cfg.CheckpointInterval == 0 {
			if _, err := SaveCheckpoint(r.cfg.CheckpointDir, checkpoint); err != nil && r.observer != nil {
				r.observer.LogOperation(observability.StandardObservabilityData{
					Component: "workflow",
					Operation: "save_checkpoint",
					Success:   false,
					Metadata:  map[string]interface{}{"error": err.Error()},
				})
			}
		}
	}

	if r.cfg.CheckpointDir != "" {
		if _, err := SaveCheckpoint(r.cfg.CheckpointDir, checkpoint); err != nil {
			return nil, fmt.Errorf("saving final checkpoint: %w", err)
		}
	}

	sort.Slice(outcome.Records, func(a, b int) bool {
		return outcome.Records[a].AppName < outcome.Records[b].AppName
	})

	vopts := r.cfg.Validate
	vopts.Strict = vopts.Strict || r.cfg.Strict
	outcome.Validation = validate.ValidateBatch(outcome.Records, vopts)
	if len(outcome.Records) > 0 {
		records := outcome.Records
		if r.cfg.Strict {
			records = dropPartials(records)
		}
		ccfg := r.cfg.Compare
		if ccfg.QuotesPerTheme <= 0 {
			ccfg.QuotesPerTheme = compare.DefaultQuotesPerTheme
		}
		outcome.Report = compare.BuildReport(records, ccfg)
	}

	if finish != nil {
		finish(len(outcome.Failed) == 0, map[string]interface{}{
			"records": len(outcome.Records),
			"failed":  len(outcome.Failed),
			"skipped": len(outcome.Skipped),
		})
	}
	if len(outcome.Records) == 0 && pending > 0 {
		return outcome, fmt.Errorf("all %d documents failed", pending)
	}
	return outcome, nil
}

// dropPartials excludes partially merged records from strict
// aggregation.
func dropPartials(records []*analysis.Record) []*analysis.Record {
	kept := make([]*analysis.Record, 0, len(records))
	for _, rec := range records {
		if !rec.Partial {
			kept = append(kept, rec)
		}
	}
	return kept
}

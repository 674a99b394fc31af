package client

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/levitate/pkg/logger"
)

// BatchConfig controls a batch run.
type BatchConfig struct {
	Files   []string // local tracks to upload and generate
	Workers int      // concurrent requests; defaults to NumCPU
	// UploadOnly skips generation.
	UploadOnly bool
}

// BatchResult is the outcome for one file.
type BatchResult struct {
	File     string        `json:"file"`
	Key      string        `json:"key,omitempty"`
	Prompt   string        `json:"prompt,omitempty"`
	ImageURL string        `json:"image_url,omitempty"`
	Error    string        `json:"error,omitempty"`
	Took     time.Duration `json:"took_ns"`
}

// BatchReport summarizes a batch run. Results keep the input order.
type BatchReport struct {
	Results   []BatchResult `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration_ns"`
}

type batchJob struct {
	index int
	path  string
}

// RunBatch uploads every file and, unless UploadOnly is set, generates art
// for it, using a fixed pool of workers. A failed file does not stop the
// others; cancelling ctx stops handing out new files.
func (c *Client) RunBatch(ctx context.Context, cfg BatchConfig) BatchReport {
	start := time.Now()
	log := logger.Named("batch")
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, max(len(cfg.Files), 1))

	results := make([]BatchResult, len(cfg.Files))
	for i, f := range cfg.Files {
		results[i] = BatchResult{File: f, Error: context.Canceled.Error()}
	}

	var (
		succeeded atomic.Int64
		wg        sync.WaitGroup
	)
	jobs := make(chan batchJob, workers*2)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				res := c.processFile(ctx, job.path, cfg.UploadOnly)
				results[job.index] = res
				if res.Error != "" {
					log.Warn(ctx, "batch file failed", logger.String("file", job.path), logger.String("error", res.Error))
					continue
				}
				succeeded.Add(1)
				log.Info(ctx, "batch file done", logger.String("file", job.path), logger.Duration("took", res.Took))
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, path := range cfg.Files {
			select {
			case <-ctx.Done():
				return
			case jobs <- batchJob{index: i, path: path}:
			}
		}
	}()

	wg.Wait()

	report := BatchReport{
		Results:   results,
		Succeeded: int(succeeded.Load()),
		Failed:    len(cfg.Files) - int(succeeded.Load()),
		Duration:  time.Since(start),
	}
	log.Info(ctx, "batch finished",
		logger.Int("files", len(cfg.Files)),
		logger.Int("workers", workers),
		logger.Int("succeeded", report.Succeeded),
		logger.Int("failed", report.Failed),
		logger.Duration("took", report.Duration),
	)
	return report
}

func (c *Client) processFile(ctx context.Context, path string, uploadOnly bool) BatchResult {
	start := time.Now()
	res := BatchResult{File: path}
	done := func(err error) BatchResult {
		res.Took = time.Since(start)
		if err != nil {
			res.Error = err.Error()
		}
		return res
	}

	up, err := c.UploadFile(ctx, path)
	if err != nil {
		return done(fmt.Errorf("upload %s: %w", filepath.Base(path), err))
	}
	res.Key = up.Key
	if uploadOnly {
		return done(nil)
	}

	gen, err := c.Generate(ctx, up.Key)
	if err != nil {
		return done(fmt.Errorf("generate %s: %w", up.Key, err))
	}
	res.Prompt = gen.Prompt
	res.ImageURL = gen.ImageURL
	return done(nil)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// Enhancer is a pretrained enhancement network.
type Enhancer interface {
	Name() string
	Enhance(img gocv.Mat) (gocv.Mat, error)
	Close() error
}

// inferenceClock accumulates time spent in successful model runs.
type inferenceClock struct {
	total atomic.Int64
}

func (c *inferenceClock) add(d time.Duration) {
	c.total.Add(int64(d))
}

func (c *inferenceClock) Total() time.Duration {
	return time.Duration(c.total.Load())
}

// PrepareModelDirs creates dst/<model> for every model.
func PrepareModelDirs(dst string, models []Enhancer) error {
	for _, m := range models {
		dir := filepath.Join(dst, m.Name())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// EnhanceWithModels builds a FileFunc that runs every model on an image, in
// order, and writes each result to dst/<model>/<file name>. A failing model is
// logged and the remaining models still run.
func EnhanceWithModels(dst string, models []Enhancer, clock *inferenceClock) FileFunc {
	return func(ctx context.Context, path string) error {
		base := filepath.Base(path)

		src := gocv.IMRead(path, gocv.IMReadColor)
		defer src.Close()
		if src.Empty() {
			return fmt.Errorf("%w: %s", ErrUnreadable, path)
		}

		log.Info().Str("image", path).Msg("Processing: " + base)

		var errs []error
		for _, m := range models {
			if err := ctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			out, err := m.Enhance(src)
			elapsed := time.Since(start)
			if err != nil {
				log.Warn().Err(err).Str("model", m.Name()).Msg("Error in " + m.Name())
				errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
				continue
			}
			clock.add(elapsed)

			dstPath := filepath.Join(dst, m.Name(), base)
			ok := gocv.IMWrite(dstPath, out)
			out.Close()
			if !ok {
				errs = append(errs, fmt.Errorf("%s: error writing image to disk: %s", m.Name(), dstPath))
				continue
			}

			log.Info().
				Str("model", m.Name()).
				Float64("seconds", elapsed.Seconds()).
				Str("dst", dstPath).
				Msg(m.Name() + " done")
		}

		return errors.Join(errs...)
	}
}

// RunUIE opens the configured models and runs them over cfg.Src.
func RunUIE(ctx context.Context, cfg UIEConfig, workers int) (Summary, error) {
	selected, err := cfg.Selected()
	if err != nil {
		return Summary{}, err
	}

	shutdown, err := InitRuntime(cfg.SharedLibrary)
	if err != nil {
		return Summary{}, err
	}
	defer shutdown()

	var models []Enhancer
	defer func() {
		for _, m := range models {
			if err := m.Close(); err != nil {
				log.Warn().Err(err).Str("model", m.Name()).Msg("close session")
			}
		}
	}()
	for _, mc := range selected {
		m, err := OpenModel(mc)
		if err != nil {
			return Summary{}, err
		}
		models = append(models, m)
	}

	return runModels(ctx, cfg, models, workers)
}

func runModels(ctx context.Context, cfg UIEConfig, models []Enhancer, workers int) (Summary, error) {
	if err := PrepareModelDirs(cfg.Dst, models); err != nil {
		return Summary{}, err
	}

	clock := &inferenceClock{}
	summary, err := Batch{
		Name:       "uie",
		Src:        cfg.Src,
		Dst:        cfg.Dst,
		Extensions: cfg.Extensions,
		Workers:    workers,
		Each:       EnhanceWithModels(cfg.Dst, models, clock),
	}.Run(ctx)

	if summary.Total > 0 {
		log.Info().
			Float64("inference(s)", clock.Total().Seconds()).
			Str("dst", cfg.Dst).
			Msg(fmt.Sprintf("All %d images processed", summary.Total))
	}

	return summary, err
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// ErrUnreadable is returned for files OpenCV cannot decode.
var ErrUnreadable = errors.New("cannot read image")

// FileFunc processes a single input file.
type FileFunc func(ctx context.Context, path string) error

// ProcessFunc turns a decoded image into its enhanced version. The returned Mat is owned by the caller.
type ProcessFunc func(src gocv.Mat) (gocv.Mat, error)

// Batch describes one pass over an input directory.
type Batch struct {
	Name       string
	Src        string
	Dst        string
	Extensions []string
	Workers    int
	Each       FileFunc
}

// Summary reports the outcome of a batch.
type Summary struct {
	Total     int
	Processed int
	Failed    int
	Elapsed   time.Duration
}

// ListImages returns the regular files in dir whose extension matches one of
// exts, compared case-insensitively, sorted by name.
func ListImages(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !slices.ContainsFunc(exts, func(s string) bool { return strings.EqualFold(s, ext) }) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}

	return files, nil
}

// Run processes every matching file in b.Src. A failing file is logged and
// counted; only context cancellation stops the batch early.
func (b Batch) Run(ctx context.Context) (Summary, error) {
	start := time.Now()

	files, err := ListImages(b.Src, b.Extensions)
	if err != nil {
		return Summary{}, err
	}

	if err := os.MkdirAll(b.Dst, 0o755); err != nil {
		return Summary{}, fmt.Errorf("create %s: %w", b.Dst, err)
	}

	if len(files) == 0 {
		log.Warn().Str("src", b.Src).Msg("no images found in input folder")
		return Summary{}, nil
	}

	var processed, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, b.Workers))

	for _, f := range files {
		if gctx.Err() != nil {
			break
		}
		f := f
		g.Go(func() error {
			// the slot may free up after cancellation
			if gctx.Err() != nil {
				return nil
			}
			if err := b.Each(gctx, f); err != nil {
				failed.Add(1)
				log.Warn().Err(err).Str("image", f).Str("tool", b.Name).Msg(filepath.Base(f))
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{
		Total:     len(files),
		Processed: int(processed.Load()),
		Failed:    int(failed.Load()),
		Elapsed:   time.Since(start),
	}

	log.Info().
		Str("tool", b.Name).
		Int("total", summary.Total).
		Int("processed", summary.Processed).
		Int("failed", summary.Failed).
		Int64("duration(ms)", summary.Elapsed.Milliseconds()).
		Str("dst", b.Dst).
		Msg("batch done")

	return summary, ctx.Err()
}

// EnhanceFiles builds a FileFunc that reads an image, runs process on it and
// writes the result under dst with the same file name.
func EnhanceFiles(dst string, visual bool, process ProcessFunc) FileFunc {
	return func(ctx context.Context, path string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		base := filepath.Base(path)

		src := gocv.IMRead(path, gocv.IMReadAnyColor)
		defer src.Close()
		if src.Empty() {
			return fmt.Errorf("%w: %s", ErrUnreadable, path)
		}

		out, err := process(src)
		if err != nil {
			out.Close()
			return err
		}
		defer out.Close()

		if visual {
			show(map[string]gocv.Mat{"src": src, "result": out})
		}

		dstPath := filepath.Join(dst, base)
		if ok := gocv.IMWrite(dstPath, out); !ok {
			return fmt.Errorf("error writing image to disk: %s", dstPath)
		}

		b, m, s := ComputeImageChannelMetrics(out)
		log.Info().
			Int64("duration(ms)", time.Since(start).Milliseconds()).
			Float32("brightness", b).
			Float32("mean", m).
			Float32("stdDev", s).
			Str("dst", dstPath).
			Msg("Processed: " + base)

		return nil
	}
}

// show opens one window per image and blocks until a key is pressed.
func show(images map[string]gocv.Mat) {
	var windows []*gocv.Window
	for name, img := range images {
		w := gocv.NewWindow(name)
		w.IMShow(img)
		windows = append(windows, w)
	}
	gocv.WaitKey(0)
	for _, w := range windows {
		w.Close()
	}
}

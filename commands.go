package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/cyber-nic/uie-enhance-cli/sovits"
)

var errUsage = errors.New("usage")

// run dispatches a command with its own flags layered over cfg.
func run(ctx context.Context, cfg AppConfig, command string, args []string) error {
	workers := cfg.Workers
	if cfg.Visual {
		workers = 1
	}

	switch command {
	case "he":
		return runHE(ctx, cfg, workers, args)
	case "msrcr":
		return runMSRCR(ctx, cfg, workers, args)
	case "uie":
		return runUIE(ctx, cfg, workers, args)
	case "narrate":
		return runNarrate(ctx, cfg.Narrate, args)
	}

	return fmt.Errorf("%w: unknown command %q", errUsage, command)
}

func runHE(ctx context.Context, cfg AppConfig, workers int, args []string) error {
	fs := flag.NewFlagSet("he", flag.ContinueOnError)
	src := fs.String("src", cfg.HE.Src, "sets input image folder")
	dst := fs.String("dst", cfg.HE.Dst, "sets output image folder")
	mode := fs.String("mode", cfg.HE.Mode, "color handling: luma or channels")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	cfg.HE.Src, cfg.HE.Dst, cfg.HE.Mode = *src, *dst, *mode
	if err := cfg.HE.Validate(); err != nil {
		return err
	}

	process := func(img gocv.Mat) (gocv.Mat, error) {
		return EqualizeHistogram(img, cfg.HE.Mode)
	}

	_, err := Batch{
		Name:       "he",
		Src:        cfg.HE.Src,
		Dst:        cfg.HE.Dst,
		Extensions: cfg.HE.Extensions,
		Workers:    workers,
		Each:       EnhanceFiles(cfg.HE.Dst, cfg.Visual, process),
	}.Run(ctx)
	return err
}

func runMSRCR(ctx context.Context, cfg AppConfig, workers int, args []string) error {
	fs := flag.NewFlagSet("msrcr", flag.ContinueOnError)
	src := fs.String("src", cfg.MSRCR.Src, "sets input image folder")
	dst := fs.String("dst", cfg.MSRCR.Dst, "sets output image folder")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	cfg.MSRCR.Src, cfg.MSRCR.Dst = *src, *dst
	if err := cfg.MSRCR.Validate(); err != nil {
		return err
	}

	params := MSRCRParams{
		Scales:       cfg.MSRCR.Scales,
		Alpha:        cfg.MSRCR.Alpha,
		Beta:         cfg.MSRCR.Beta,
		ColorRestore: cfg.MSRCR.ColorRestore,
	}
	log.Debug().
		Ints("scales", params.Scales).
		Float32("alpha", params.Alpha).
		Float32("beta", params.Beta).
		Float32("color_restore", params.ColorRestore).
		Msg("msrcr")

	process := func(img gocv.Mat) (gocv.Mat, error) {
		return MSRCR(img, params)
	}

	_, err := Batch{
		Name:       "msrcr",
		Src:        cfg.MSRCR.Src,
		Dst:        cfg.MSRCR.Dst,
		Extensions: cfg.MSRCR.Extensions,
		Workers:    workers,
		Each:       EnhanceFiles(cfg.MSRCR.Dst, cfg.Visual, process),
	}.Run(ctx)
	return err
}

func runUIE(ctx context.Context, cfg AppConfig, workers int, args []string) error {
	fs := flag.NewFlagSet("uie", flag.ContinueOnError)
	src := fs.String("src", cfg.UIE.Src, "sets input image folder")
	dst := fs.String("dst", cfg.UIE.Dst, "sets output folder, one subfolder per model")
	models := fs.String("models", "", "comma separated model names, default all configured")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	cfg.UIE.Src, cfg.UIE.Dst = *src, *dst
	if *models != "" {
		cfg.UIE.Use = splitList(*models)
	}

	_, err := RunUIE(ctx, cfg.UIE, workers)
	return err
}

func runNarrate(ctx context.Context, cfg NarrateConfig, args []string) error {
	fs := flag.NewFlagSet("narrate", flag.ContinueOnError)
	infer := fs.String("infer", "", "GPT-SoVITS infer.json, replaces the narrate config section")
	novel := fs.String("novel", "", "novel text file")
	out := fs.String("out", "", "output folder for chapter_NNNN.wav files")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	if *infer != "" {
		loaded, err := LoadNarrateConfig(*infer)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *novel != "" {
		cfg.NovelPath = *novel
	}
	if *out != "" {
		cfg.OutputDir = *out
	}

	client := sovits.NewClient(cfg.APIURL, cfg.Timeout)
	summary, err := Narrate(ctx, cfg, client)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		log.Warn().Int("failed", summary.Failed).Msg("some paragraphs were not synthesized")
	}
	return nil
}

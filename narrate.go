package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cyber-nic/uie-enhance-cli/sovits"
)

// Synthesizer renders one paragraph of text to WAV bytes.
type Synthesizer interface {
	SetGPTWeights(ctx context.Context, path string) error
	SetSoVITSWeights(ctx context.Context, path string) error
	Synthesize(ctx context.Context, r sovits.Request) ([]byte, error)
}

// NarrateSummary reports the outcome of a narration run.
type NarrateSummary struct {
	Paragraphs int
	Written    int
	Skipped    int
	Failed     int
}

// SplitParagraphs splits text on blank lines, trimming each paragraph and
// dropping empty ones.
func SplitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ChapterPath returns the output file for the i-th paragraph, counting from 1.
func ChapterPath(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("chapter_%04d.wav", i))
}

// NewTTSRequest fills the per-run fields of a synthesis request from cfg.
func NewTTSRequest(cfg NarrateConfig) sovits.Request {
	prompt := cfg.PromptText
	if cfg.RefFree {
		prompt = ""
	}
	return sovits.Request{
		TextLang:         sovits.LanguageCode(cfg.TextLanguage),
		RefAudioPath:     cfg.RefWavPath,
		PromptText:       prompt,
		PromptLang:       sovits.LanguageCode(cfg.PromptLanguage),
		TopK:             cfg.TopK,
		TopP:             cfg.TopP,
		Temperature:      cfg.Temperature,
		TextSplitMethod:  sovits.SplitMethod(cfg.HowToCut),
		SpeedFactor:      cfg.Speed,
		FragmentInterval: cfg.PauseSecond,
		SampleSteps:      cfg.SampleSteps,
		SuperSampling:    cfg.IfSR,
		MediaType:        "wav",
	}
}

// Narrate synthesizes every paragraph of cfg.NovelPath into cfg.OutputDir.
// A failed paragraph is logged and skipped.
func Narrate(ctx context.Context, cfg NarrateConfig, tts Synthesizer) (NarrateSummary, error) {
	if err := cfg.Validate(); err != nil {
		return NarrateSummary{}, err
	}

	content, err := os.ReadFile(cfg.NovelPath)
	if err != nil {
		return NarrateSummary{}, fmt.Errorf("read novel: %w", err)
	}
	paragraphs := SplitParagraphs(string(content))
	summary := NarrateSummary{Paragraphs: len(paragraphs)}
	if len(paragraphs) == 0 {
		log.Warn().Str("novel", cfg.NovelPath).Msg("no paragraphs found")
		return summary, nil
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return summary, fmt.Errorf("create %s: %w", cfg.OutputDir, err)
	}

	if cfg.GPTPath != "" {
		if err := tts.SetGPTWeights(ctx, cfg.GPTPath); err != nil {
			return summary, fmt.Errorf("load gpt weights: %w", err)
		}
	}
	if cfg.SoVITSPath != "" {
		if err := tts.SetSoVITSWeights(ctx, cfg.SoVITSPath); err != nil {
			return summary, fmt.Errorf("load sovits weights: %w", err)
		}
	}
	if cfg.IfFreeze {
		log.Warn().Msg("if_freeze has no API equivalent and is ignored")
	}

	base := NewTTSRequest(cfg)
	for i, p := range paragraphs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		n := i + 1
		dst := ChapterPath(cfg.OutputDir, n)
		if cfg.SkipExisting {
			if _, err := os.Stat(dst); err == nil {
				log.Debug().Str("dst", dst).Msg("chapter exists, skipping")
				summary.Skipped++
				continue
			}
		}

		log.Info().Msg(fmt.Sprintf("paragraph %d/%d", n, len(paragraphs)))
		start := time.Now()

		if err := synthesizeParagraph(ctx, tts, base, p, dst); err != nil {
			if errors.Is(err, context.Canceled) {
				return summary, err
			}
			log.Warn().Err(err).Int("paragraph", n).Msg("synthesis failed")
			summary.Failed++
			continue
		}

		summary.Written++
		log.Info().
			Int64("duration(ms)", time.Since(start).Milliseconds()).
			Int("chars", len([]rune(p))).
			Str("dst", dst).
			Msg("saved " + filepath.Base(dst))
	}

	log.Info().
		Int("paragraphs", summary.Paragraphs).
		Int("written", summary.Written).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Str("dst", cfg.OutputDir).
		Msg("narration done")

	return summary, nil
}

func synthesizeParagraph(ctx context.Context, tts Synthesizer, base sovits.Request, text, dst string) error {
	req := base
	req.Text = text

	audio, err := tts.Synthesize(ctx, req)
	if err != nil {
		return err
	}

	rate, err := sovits.WAVSampleRate(audio)
	if err != nil {
		return err
	}
	log.Debug().Int("sample_rate", rate).Int("bytes", len(audio)).Msg(filepath.Base(dst))

	// a chapter file only ever holds complete audio
	tmp := dst + ".part"
	if err := os.WriteFile(tmp, audio, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("rename %s: %w", dst, err)
	}
	return nil
}

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyber-nic/uie-enhance-cli/sovits"
)

// pcmWAV returns a header-only 16-bit mono WAV stream.
func pcmWAV(rate int) []byte {
	b := make([]byte, 44)
	copy(b[0:], "RIFF")
	binary.LittleEndian.PutUint32(b[4:], 36)
	copy(b[8:], "WAVE")
	copy(b[12:], "fmt ")
	binary.LittleEndian.PutUint32(b[16:], 16)
	binary.LittleEndian.PutUint16(b[20:], 1)
	binary.LittleEndian.PutUint16(b[22:], 1)
	binary.LittleEndian.PutUint32(b[24:], uint32(rate))
	binary.LittleEndian.PutUint32(b[28:], uint32(rate*2))
	binary.LittleEndian.PutUint16(b[32:], 2)
	binary.LittleEndian.PutUint16(b[34:], 16)
	copy(b[36:], "data")
	return b
}

type fakeSynth struct {
	gpt, sovits string
	requests    []sovits.Request
	reply       func(text string) ([]byte, error)
}

func (f *fakeSynth) SetGPTWeights(_ context.Context, p string) error {
	f.gpt = p
	return nil
}

func (f *fakeSynth) SetSoVITSWeights(_ context.Context, p string) error {
	f.sovits = p
	return nil
}

func (f *fakeSynth) Synthesize(_ context.Context, r sovits.Request) ([]byte, error) {
	f.requests = append(f.requests, r)
	if f.reply != nil {
		return f.reply(r.Text)
	}
	return pcmWAV(32000), nil
}

func narrateFixture(t *testing.T, novel string) NarrateConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultNarrateConfig()
	cfg.GPTPath = "gpt.ckpt"
	cfg.SoVITSPath = "sovits.pth"
	cfg.RefWavPath = writeFile(t, dir, "ref.wav", string(pcmWAV(32000)))
	cfg.NovelPath = writeFile(t, dir, "novel.txt", novel)
	cfg.OutputDir = filepath.Join(dir, "audio")
	return cfg
}

func TestSplitParagraphs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"blank lines", "第一段。\n\n第二段。\n\n\n第三段。", []string{"第一段。", "第二段。", "第三段。"}},
		{"single newline stays", "line one\nline two\n\nnext", []string{"line one\nline two", "next"}},
		{"crlf", "a\r\n\r\nb\r\n", []string{"a", "b"}},
		{"whitespace only", "  \n\n \t \n\n", nil},
		{"trimmed", "  padded  \n\n", []string{"padded"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitParagraphs(tt.in))
		})
	}
}

func TestChapterPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "chapter_0001.wav"), ChapterPath("out", 1))
	assert.Equal(t, filepath.Join("out", "chapter_0123.wav"), ChapterPath("out", 123))
}

func TestNewTTSRequest(t *testing.T) {
	cfg := DefaultNarrateConfig()
	cfg.RefWavPath = "ref.wav"
	cfg.PromptText = "参考文本"
	cfg.PromptLanguage = "日文"
	cfg.Speed = 1.2
	cfg.PauseSecond = 0.5
	cfg.IfSR = true

	r := NewTTSRequest(cfg)
	assert.Equal(t, "all_zh", r.TextLang)
	assert.Equal(t, "all_ja", r.PromptLang)
	assert.Equal(t, "cut1", r.TextSplitMethod)
	assert.Equal(t, "参考文本", r.PromptText)
	assert.Equal(t, "ref.wav", r.RefAudioPath)
	assert.Equal(t, 1.2, r.SpeedFactor)
	assert.Equal(t, 0.5, r.FragmentInterval)
	assert.True(t, r.SuperSampling)
	assert.Equal(t, "wav", r.MediaType)

	cfg.RefFree = true
	assert.Empty(t, NewTTSRequest(cfg).PromptText)
}

func TestNarrateWritesOneChapterPerParagraph(t *testing.T) {
	cfg := narrateFixture(t, "first\n\nsecond fails\n\nthird\n")
	tts := &fakeSynth{reply: func(text string) ([]byte, error) {
		if strings.Contains(text, "fails") {
			return nil, &sovits.APIError{StatusCode: 400, Message: "tts failed"}
		}
		return pcmWAV(32000), nil
	}}

	summary, err := Narrate(context.Background(), cfg, tts)
	require.NoError(t, err)

	assert.Equal(t, NarrateSummary{Paragraphs: 3, Written: 2, Failed: 1}, summary)
	assert.Equal(t, "gpt.ckpt", tts.gpt)
	assert.Equal(t, "sovits.pth", tts.sovits)
	require.Len(t, tts.requests, 3)
	assert.Equal(t, "first", tts.requests[0].Text)
	assert.Equal(t, cfg.RefWavPath, tts.requests[0].RefAudioPath)

	assert.FileExists(t, ChapterPath(cfg.OutputDir, 1))
	assert.NoFileExists(t, ChapterPath(cfg.OutputDir, 2))
	assert.FileExists(t, ChapterPath(cfg.OutputDir, 3))
	assert.NoFileExists(t, ChapterPath(cfg.OutputDir, 3)+".part")
}

func TestNarrateSkipsExistingChapters(t *testing.T) {
	cfg := narrateFixture(t, "one\n\ntwo")
	cfg.SkipExisting = true
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0o755))
	require.NoError(t, os.WriteFile(ChapterPath(cfg.OutputDir, 1), pcmWAV(32000), 0o644))

	tts := &fakeSynth{}
	summary, err := Narrate(context.Background(), cfg, tts)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Written)
	require.Len(t, tts.requests, 1)
	assert.Equal(t, "two", tts.requests[0].Text)
}

func TestNarrateRejectsNonWAVAudio(t *testing.T) {
	cfg := narrateFixture(t, "only")
	tts := &fakeSynth{reply: func(string) ([]byte, error) { return []byte("<html>"), nil }}

	summary, err := Narrate(context.Background(), cfg, tts)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.NoFileExists(t, ChapterPath(cfg.OutputDir, 1))
}

func TestNarrateMissingInputs(t *testing.T) {
	cfg := narrateFixture(t, "text")
	cfg.RefWavPath = filepath.Join(t.TempDir(), "missing.wav")
	_, err := Narrate(context.Background(), cfg, &fakeSynth{})
	assert.ErrorContains(t, err, "reference audio does not exist")

	cfg = narrateFixture(t, "text")
	cfg.NovelPath = filepath.Join(t.TempDir(), "missing.txt")
	_, err = Narrate(context.Background(), cfg, &fakeSynth{})
	assert.ErrorContains(t, err, "novel file does not exist")
}

func TestNarrateStopsWhenCancelled(t *testing.T) {
	cfg := narrateFixture(t, "a\n\nb")
	ctx, cancel := context.WithCancel(context.Background())
	tts := &fakeSynth{reply: func(string) ([]byte, error) {
		cancel()
		return nil, context.Canceled
	}}

	_, err := Narrate(ctx, cfg, tts)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, tts.requests, 1)
}

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadConfigMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := LoadConfig(missing, false)
	require.NoError(t, err)
	assert.Equal(t, []int{15, 80, 250}, cfg.MSRCR.Scales)
	assert.Equal(t, HEModeLuma, cfg.HE.Mode)
	require.Len(t, cfg.UIE.Models, 2)
	assert.Equal(t, []string{"input"}, cfg.UIE.Models[0].Inputs)
	assert.Equal(t, []string{"raw", "wb", "ce", "gc"}, cfg.UIE.Models[1].Inputs)

	_, err = LoadConfig(missing, true)
	assert.Error(t, err)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), "local.env.yaml", `
debug: true
human: true
workers: 0
msrcr:
  src: in
  dst: out
  alpha: 100
uie:
  models:
    - name: WaterNet
      path: w.onnx
narrate:
  api_url: http://tts:9880
  top_k: 5
  timeout: 30s
`)

	cfg, err := LoadConfig(p, true)
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.True(t, cfg.Human)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, float32(100), cfg.MSRCR.Alpha)
	assert.Equal(t, float32(46), cfg.MSRCR.Beta)
	assert.Equal(t, float32(1), cfg.MSRCR.ColorRestore)

	require.Len(t, cfg.UIE.Models, 1)
	m := cfg.UIE.Models[0]
	assert.Equal(t, KindWaterNet, m.Kind)
	assert.Equal(t, "output", m.Output)
	assert.Len(t, m.Inputs, 4)

	assert.Equal(t, "http://tts:9880", cfg.Narrate.APIURL)
	assert.Equal(t, 5, cfg.Narrate.TopK)
	assert.Equal(t, 30*time.Second, cfg.Narrate.Timeout)
	assert.Equal(t, "凑四句一切", cfg.Narrate.HowToCut)
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "bad.yaml", "workers: [1, 2\n")
	_, err := LoadConfig(p, true)
	assert.Error(t, err)
}

func TestLoadNarrateConfigReadsInferJSON(t *testing.T) {
	p := writeFile(t, t.TempDir(), "infer.json", `{
  "gpt_path": "g.ckpt",
  "sovits_path": "s.pth",
  "ref_wav_path": "ref.wav",
  "prompt_text": "你好",
  "text_language": "英文",
  "top_p": 0.8,
  "ref_free": true,
  "if_sr": true,
  "pause_second": 0.5,
  "output_dir": "audio",
  "novel_path": "novel.txt"
}`)

	cfg, err := LoadNarrateConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "g.ckpt", cfg.GPTPath)
	assert.Equal(t, "s.pth", cfg.SoVITSPath)
	assert.Equal(t, "英文", cfg.TextLanguage)
	assert.Equal(t, 0.8, cfg.TopP)
	assert.True(t, cfg.RefFree)
	assert.True(t, cfg.IfSR)
	assert.Equal(t, 0.5, cfg.PauseSecond)
	assert.Equal(t, "audio", cfg.OutputDir)
	// untouched keys keep their defaults
	assert.Equal(t, "http://127.0.0.1:9880", cfg.APIURL)
	assert.Equal(t, 15, cfg.TopK)
}

func TestMSRCRConfigValidate(t *testing.T) {
	base := DefaultConfig().MSRCR
	base.Src, base.Dst = "in", "out"

	tests := []struct {
		name   string
		mutate func(*MSRCRConfig)
		ok     bool
	}{
		{"defaults", func(*MSRCRConfig) {}, true},
		{"missing dst", func(c *MSRCRConfig) { c.Dst = "" }, false},
		{"no scales", func(c *MSRCRConfig) { c.Scales = nil }, false},
		{"zero scale", func(c *MSRCRConfig) { c.Scales = []int{15, 0} }, false},
		{"negative restore", func(c *MSRCRConfig) { c.ColorRestore = -1 }, false},
		{"zero restore", func(c *MSRCRConfig) { c.ColorRestore = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			c.Scales = append([]int(nil), base.Scales...)
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrConfig)
			}
		})
	}
}

func TestHEConfigValidate(t *testing.T) {
	c := HEConfig{Src: "in", Dst: "out", Mode: HEModeChannels}
	assert.NoError(t, c.Validate())

	c.Mode = "rgb"
	assert.ErrorIs(t, c.Validate(), ErrConfig)

	c = HEConfig{Mode: HEModeLuma}
	assert.ErrorIs(t, c.Validate(), ErrConfig)
}

func TestUIEConfigSelected(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"), false)
	require.NoError(t, err)
	uie := cfg.UIE
	uie.Src, uie.Dst = "in", "out"

	all, err := uie.Selected()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	uie.Use = []string{"waternet", "UWCNN"}
	picked, err := uie.Selected()
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "WaterNet", picked[0].Name)
	assert.Equal(t, "UWCNN", picked[1].Name)

	uie.Use = []string{"FUnIE"}
	_, err = uie.Selected()
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorContains(t, err, "unsupported mode: FUnIE")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"UWCNN", "WaterNet"}, splitList(" UWCNN, ,WaterNet "))
	assert.Nil(t, splitList(""))
}

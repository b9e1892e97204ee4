package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfig marks an invalid configuration value. It is reported before any file is touched.
var ErrConfig = errors.New("invalid config")

const defaultConfigFilename = "local.env.yaml"

var (
	heExtensions    = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff"}
	imageExtensions = []string{".jpg", ".jpeg", ".png"}
)

// HEConfig configures the histogram equalization batch.
type HEConfig struct {
	Src        string   `yaml:"src"`
	Dst        string   `yaml:"dst"`
	Mode       string   `yaml:"mode"`
	Extensions []string `yaml:"extensions"`
}

// MSRCRConfig configures the Multi-Scale Retinex with Color Restoration batch.
type MSRCRConfig struct {
	Src          string   `yaml:"src"`
	Dst          string   `yaml:"dst"`
	Extensions   []string `yaml:"extensions"`
	Scales       []int    `yaml:"scales"`
	Alpha        float32  `yaml:"alpha"`
	Beta         float32  `yaml:"beta"`
	ColorRestore float32  `yaml:"color_restore"`
}

// ModelConfig describes one ONNX export of an enhancement network.
type ModelConfig struct {
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"`
	Path    string   `yaml:"path"`
	Inputs  []string `yaml:"inputs"`
	Output  string   `yaml:"output"`
	MaxSide int      `yaml:"max_side"`
}

// UIEConfig configures the underwater image enhancement batch.
type UIEConfig struct {
	Src           string        `yaml:"src"`
	Dst           string        `yaml:"dst"`
	Extensions    []string      `yaml:"extensions"`
	SharedLibrary string        `yaml:"shared_library"`
	Models        []ModelConfig `yaml:"models"`
	Use           []string      `yaml:"use"`
}

// NarrateConfig mirrors the keys of a GPT-SoVITS infer.json file.
type NarrateConfig struct {
	APIURL         string        `yaml:"api_url"`
	GPTPath        string        `yaml:"gpt_path"`
	SoVITSPath     string        `yaml:"sovits_path"`
	RefWavPath     string        `yaml:"ref_wav_path"`
	PromptText     string        `yaml:"prompt_text"`
	PromptLanguage string        `yaml:"prompt_language"`
	TextLanguage   string        `yaml:"text_language"`
	HowToCut       string        `yaml:"how_to_cut"`
	TopK           int           `yaml:"top_k"`
	TopP           float64       `yaml:"top_p"`
	Temperature    float64       `yaml:"temperature"`
	RefFree        bool          `yaml:"ref_free"`
	Speed          float64       `yaml:"speed"`
	IfFreeze       bool          `yaml:"if_freeze"`
	SampleSteps    int           `yaml:"sample_steps"`
	IfSR           bool          `yaml:"if_sr"`
	PauseSecond    float64       `yaml:"pause_second"`
	OutputDir      string        `yaml:"output_dir"`
	NovelPath      string        `yaml:"novel_path"`
	SkipExisting   bool          `yaml:"skip_existing"`
	Timeout        time.Duration `yaml:"timeout"`
}

type AppConfig struct {
	Debug   bool
	Info    bool
	Visual  bool
	Human   bool
	Workers int

	HE      HEConfig      `yaml:"he"`
	MSRCR   MSRCRConfig   `yaml:"msrcr"`
	UIE     UIEConfig     `yaml:"uie"`
	Narrate NarrateConfig `yaml:"narrate"`
}

// DefaultConfig returns the values used for anything the config file leaves out.
func DefaultConfig() AppConfig {
	return AppConfig{
		Info:    true,
		Workers: 1,
		HE: HEConfig{
			Mode:       HEModeLuma,
			Extensions: heExtensions,
		},
		MSRCR: MSRCRConfig{
			Extensions:   imageExtensions,
			Scales:       []int{15, 80, 250},
			Alpha:        125,
			Beta:         46,
			ColorRestore: 1.0,
		},
		UIE: UIEConfig{
			Extensions: imageExtensions,
			Models: []ModelConfig{
				{Name: "UWCNN", Kind: KindUWCNN, Path: "models/uwcnn.onnx"},
				{Name: "WaterNet", Kind: KindWaterNet, Path: "models/waternet.onnx"},
			},
		},
		Narrate: DefaultNarrateConfig(),
	}
}

// DefaultNarrateConfig matches the GPT-SoVITS web UI defaults.
func DefaultNarrateConfig() NarrateConfig {
	return NarrateConfig{
		APIURL:         "http://127.0.0.1:9880",
		PromptLanguage: "中文",
		TextLanguage:   "中文",
		HowToCut:       "凑四句一切",
		TopK:           15,
		TopP:           1,
		Temperature:    1,
		Speed:          1,
		SampleSteps:    8,
		PauseSecond:    0.3,
		OutputDir:      "output",
		Timeout:        5 * time.Minute,
	}
}

// LoadConfig reads a YAML config file over DefaultConfig. A missing file is an
// error only when required is set.
func LoadConfig(filename string, required bool) (AppConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg.normalize(), nil
		}
		return cfg, fmt.Errorf("read config %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", filename, err)
	}

	return cfg.normalize(), nil
}

func (c AppConfig) normalize() AppConfig {
	if c.Workers < 1 {
		c.Workers = 1
	}
	models := make([]ModelConfig, len(c.UIE.Models))
	for i, m := range c.UIE.Models {
		applyModelDefaults(&m)
		models[i] = m
	}
	c.UIE.Models = models
	return c
}

// LoadNarrateConfig reads an infer.json file. JSON is valid YAML, so the same
// decoder handles both formats.
func LoadNarrateConfig(filename string) (NarrateConfig, error) {
	cfg := DefaultNarrateConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("read infer config %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse infer config %s: %w", filename, err)
	}

	return cfg, nil
}

func applyModelDefaults(m *ModelConfig) {
	m.Kind = strings.ToLower(m.Kind)
	if m.Kind == "" {
		m.Kind = strings.ToLower(m.Name)
	}
	if m.Output == "" {
		m.Output = "output"
	}
	if len(m.Inputs) == 0 {
		switch m.Kind {
		case KindWaterNet:
			m.Inputs = []string{"raw", "wb", "ce", "gc"}
		default:
			m.Inputs = []string{"input"}
		}
	}
}

func (c HEConfig) Validate() error {
	if c.Src == "" || c.Dst == "" {
		return fmt.Errorf("%w: he: src and dst are required", ErrConfig)
	}
	if c.Mode != HEModeLuma && c.Mode != HEModeChannels {
		return fmt.Errorf("%w: he: unknown mode %q", ErrConfig, c.Mode)
	}
	return nil
}

func (c MSRCRConfig) Validate() error {
	if c.Src == "" || c.Dst == "" {
		return fmt.Errorf("%w: msrcr: src and dst are required", ErrConfig)
	}
	if len(c.Scales) == 0 {
		return fmt.Errorf("%w: msrcr: at least one scale is required", ErrConfig)
	}
	for _, s := range c.Scales {
		if s <= 0 {
			return fmt.Errorf("%w: msrcr: scale %d must be positive", ErrConfig, s)
		}
	}
	if c.ColorRestore < 0 {
		return fmt.Errorf("%w: msrcr: color_restore must not be negative", ErrConfig)
	}
	return nil
}

// Selected returns the models named in Use, in that order, or every configured
// model when Use is empty.
func (c UIEConfig) Selected() ([]ModelConfig, error) {
	if c.Src == "" || c.Dst == "" {
		return nil, fmt.Errorf("%w: uie: src and dst are required", ErrConfig)
	}
	if len(c.Use) == 0 {
		if len(c.Models) == 0 {
			return nil, fmt.Errorf("%w: uie: no models configured", ErrConfig)
		}
		return c.Models, nil
	}

	var out []ModelConfig
	for _, name := range c.Use {
		found := false
		for _, m := range c.Models {
			if strings.EqualFold(m.Name, name) {
				out = append(out, m)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: unsupported mode: %s", ErrConfig, name)
		}
	}
	return out, nil
}

func (c NarrateConfig) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("%w: narrate: api_url is required", ErrConfig)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: narrate: output_dir is required", ErrConfig)
	}
	if _, err := os.Stat(c.RefWavPath); err != nil {
		return fmt.Errorf("reference audio does not exist: %s: %w", c.RefWavPath, err)
	}
	if _, err := os.Stat(c.NovelPath); err != nil {
		return fmt.Errorf("novel file does not exist: %s: %w", c.NovelPath, err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

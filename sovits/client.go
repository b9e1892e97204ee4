// Package sovits is a client for the GPT-SoVITS inference API (api_v2).
package sovits

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a running GPT-SoVITS API server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client for baseURL, e.g. http://127.0.0.1:9880.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Request is the body of POST /tts.
type Request struct {
	Text             string  `json:"text"`
	TextLang         string  `json:"text_lang"`
	RefAudioPath     string  `json:"ref_audio_path"`
	PromptText       string  `json:"prompt_text"`
	PromptLang       string  `json:"prompt_lang"`
	TopK             int     `json:"top_k"`
	TopP             float64 `json:"top_p"`
	Temperature      float64 `json:"temperature"`
	TextSplitMethod  string  `json:"text_split_method"`
	SpeedFactor      float64 `json:"speed_factor"`
	FragmentInterval float64 `json:"fragment_interval"`
	SampleSteps      int     `json:"sample_steps"`
	SuperSampling    bool    `json:"super_sampling"`
	MediaType        string  `json:"media_type"`
	StreamingMode    bool    `json:"streaming_mode"`
}

// APIError is returned for non-200 responses.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
	Exception  string `json:"Exception"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Exception != "" {
		return fmt.Sprintf("gpt-sovits: %d %s: %s", e.StatusCode, msg, e.Exception)
	}
	return fmt.Sprintf("gpt-sovits: %d %s", e.StatusCode, msg)
}

// SetGPTWeights switches the GPT (semantic) model.
func (c *Client) SetGPTWeights(ctx context.Context, path string) error {
	return c.setWeights(ctx, "/set_gpt_weights", path)
}

// SetSoVITSWeights switches the SoVITS (acoustic) model.
func (c *Client) SetSoVITSWeights(ctx context.Context, path string) error {
	return c.setWeights(ctx, "/set_sovits_weights", path)
}

func (c *Client) setWeights(ctx context.Context, endpoint, path string) error {
	u := c.BaseURL + endpoint + "?weights_path=" + url.QueryEscape(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Synthesize renders req to audio and returns the WAV bytes.
func (c *Client) Synthesize(ctx context.Context, r Request) ([]byte, error) {
	if r.MediaType == "" {
		r.MediaType = "wav"
	}
	r.StreamingMode = false

	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/tts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("/tts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return audio, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, apiErr); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

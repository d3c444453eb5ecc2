package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

type WhisperConfig struct {
	URL      string
	Model    string
	Language string
	Token    string
	Timeout  time.Duration
}

// WhisperClient calls an OpenAI compatible /audio/transcriptions endpoint.
type WhisperClient struct {
	cfg    WhisperConfig
	client *http.Client
}

func NewWhisperClient(cfg WhisperConfig) (*WhisperClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("whisper url is not configured")
	}
	if cfg.Language == "" {
		cfg.Language = "tr"
	}
	return &WhisperClient{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("empty audio")
	}
	if filename == "" {
		filename = "audio.webm"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	fields := map[string]string{
		"model":           c.cfg.Model,
		"language":        c.cfg.Language,
		"response_format": "json",
		"temperature":     "0",
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return "", fmt.Errorf("failed to build request: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, &body)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read transcription: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("invalid transcription response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// LazyTranscriber builds its Transcriber on first use. Concurrent first
// calls share one build; a failed build is retried on the next call.
type LazyTranscriber struct {
	build  func() (Transcriber, error)
	group  singleflight.Group
	handle atomic.Pointer[Transcriber]
}

func NewLazyTranscriber(build func() (Transcriber, error)) *LazyTranscriber {
	return &LazyTranscriber{build: build}
}

func (l *LazyTranscriber) get() (Transcriber, error) {
	if t := l.handle.Load(); t != nil {
		return *t, nil
	}
	v, err, _ := l.group.Do("transcriber", func() (any, error) {
		if t := l.handle.Load(); t != nil {
			return *t, nil
		}
		t, err := l.build()
		if err != nil {
			return nil, err
		}
		l.handle.Store(&t)
		log.Info().Msg("voice: speech-to-text client initialised")
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Transcriber), nil
}

func (l *LazyTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	t, err := l.get()
	if err != nil {
		return "", fmt.Errorf("speech-to-text unavailable: %w", err)
	}
	return t.Transcribe(ctx, audio, filename)
}

package asr

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
	"time"
)

var (
	ErrUnexpectedStatus   = errors.New("unexpected status from asr service")
	ErrEmptyTranscription = errors.New("asr service returned an empty transcription")
)

const DefaultTimeout = 10 * time.Second

type ASRClient struct {
	client         *http.Client
	endpoint       string
	defaultTimeout time.Duration
}

type TranscriptionResponse struct {
	Transcription string `json:"transcription"`
	Filename      string `json:"filename"`
}

// NewASRClient returns a client for the speech recognition service at endpoint.
// A nil httpClient falls back to http.DefaultClient.
func NewASRClient(endpoint string, httpClient *http.Client, defaultTimeout time.Duration) *ASRClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}

	return &ASRClient{
		client:         httpClient,
		endpoint:       endpoint,
		defaultTimeout: defaultTimeout,
	}
}

// Transcribe uploads an audio recording as the multipart field "file" and returns the recognized text.
func (c *ASRClient) Transcribe(ctx context.Context, fileName string, audio io.Reader) (*TranscriptionResponse, error) {
	transcribeCtx, cancel := context.WithTimeout(ctx, c.defaultTimeout)
	defer cancel()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("failed to copy audio: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(transcribeCtx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var transcriptionResp TranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&transcriptionResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	transcriptionResp.Transcription = strings.TrimSpace(transcriptionResp.Transcription)
	if transcriptionResp.Transcription == "" {
		return nil, ErrEmptyTranscription
	}

	return &transcriptionResp, nil
}

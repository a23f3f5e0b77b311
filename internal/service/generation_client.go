package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GenerationClient is the opaque image-generation collaborator: bytes and a
// prompt in, bytes out. Its failures are never allowed to leak a debit (the
// caller credits back).
type GenerationClient interface {
	GenerateImage(ctx context.Context, prompt string, image []byte, mimeType string) ([]byte, error)
	GenerateVideo(ctx context.Context, prompt string) (string, error)
}

type httpGenerationClient struct {
	client   *http.Client
	imageURL string
	videoURL string
}

// NewGenerationClient creates an HTTP client for the generation
// collaborator with a bounded per-call timeout.
func NewGenerationClient(imageURL, videoURL string, timeout time.Duration) GenerationClient {
	return &httpGenerationClient{
		client:   &http.Client{Timeout: timeout},
		imageURL: imageURL,
		videoURL: videoURL,
	}
}

func (c *httpGenerationClient) GenerateImage(ctx context.Context, prompt string, image []byte, mimeType string) ([]byte, error) {
	requestBody := map[string]any{
		"prompt":   prompt,
		"mimeType": mimeType,
	}
	if len(image) > 0 {
		requestBody["image"] = base64.StdEncoding.EncodeToString(image)
	}
	result, err := c.post(ctx, c.imageURL, requestBody)
	if err != nil {
		return nil, err
	}
	var out struct {
		Image string `json:"image"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decode generation response: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(out.Image)
	if err != nil {
		return nil, fmt.Errorf("decode generated image: %w", err)
	}
	return data, nil
}

func (c *httpGenerationClient) GenerateVideo(ctx context.Context, prompt string) (string, error) {
	result, err := c.post(ctx, c.videoURL, map[string]any{"prompt": prompt})
	if err != nil {
		return "", err
	}
	var out struct {
		VideoURL string `json:"videoUrl"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return "", fmt.Errorf("decode video response: %w", err)
	}
	return out.VideoURL, nil
}

func (c *httpGenerationClient) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("create generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call generation service: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read generation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation service returned %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

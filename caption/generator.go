package caption

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	maxAttempts    = 3
	initialBackoff = 5 * time.Second
	maxTokens      = 1024
	apiVersion     = "2023-06-01"
)

// instruction closes the multimodal message. The service must answer with JSON
// only so the reply can be validated against the result schema.
const instruction = `Write a caption for the photo. Respond with JSON only, exactly this shape:
{"caption": "...", "points_of_interest": [{"name": "...", "description": "..."}]}
The caption is one to three sentences for a vacation website. Each point of
interest names a web-searchable place or landmark visible in or near the photo,
with a one-sentence description. Use an empty list when nothing stands out.`

type PointOfInterest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Result is the schema the captioning service must conform to. Conformance is
// a hard contract: non-conforming replies are rejected and retried locally.
type Result struct {
	Caption          string            `json:"caption"`
	PointsOfInterest []PointOfInterest `json:"points_of_interest"`
}

// Request describes one captioning call. LocationName and MapImagePath are
// optional enrichments; the subject image is always sent.
type Request struct {
	ImagePath    string
	Photographer string
	LocationName *string
	MapImagePath *string
}

// Generator calls the external captioning service with retry and exponential
// backoff on rate-limit signals. It holds no persisted state; it only returns
// data for the coordinator to commit.
type Generator struct {
	httpClient   *http.Client
	endpoint     string
	apiKey       string
	model        string
	systemPrompt string
	sleep        func(ctx context.Context, d time.Duration) error
	logger       *zap.Logger
}

func NewGenerator(endpoint, apiKey, model, systemPrompt string, timeout time.Duration, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		httpClient:   &http.Client{Timeout: timeout},
		endpoint:     endpoint,
		apiKey:       apiKey,
		model:        model,
		systemPrompt: systemPrompt,
		sleep:        sleepContext,
		logger:       logger,
	}
}

// sleepContext waits out a backoff delay but returns early when the run is
// cancelled, so an interrupted ingestion never blocks inside a retry.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// wire types for the messages API
type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system"`
	Messages    []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Generate issues one structured captioning call, retrying rate-limited or
// schema-violating replies up to the backoff budget. Any other failure is
// returned immediately without retry.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	body, err := g.buildRequestBody(req)
	if err != nil {
		return nil, err
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, retryable, err := g.attempt(ctx, body)
		if err == nil {
			return result, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		g.logger.Warn("caption attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if sleepErr := g.sleep(ctx, backoff); sleepErr != nil {
			return nil, fmt.Errorf("caption retry interrupted: %w", sleepErr)
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("caption generation gave up after %d attempts: %w", maxAttempts, lastErr)
}

func (g *Generator) buildRequestBody(req Request) ([]byte, error) {
	var blocks []contentBlock

	// map snapshot goes first so the model sees the surroundings before the subject
	if req.MapImagePath != nil {
		block, err := imageBlock(*req.MapImagePath)
		if err != nil {
			g.logger.Warn("skipping unreadable map snapshot",
				zap.String("path", *req.MapImagePath),
				zap.Error(err))
		} else {
			blocks = append(blocks, block)
		}
	}

	subject, err := imageBlock(req.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read subject image %s: %w", req.ImagePath, err)
	}
	blocks = append(blocks, subject, contentBlock{Type: "text", Text: instruction})

	system := g.systemPrompt + "\nThe photo was taken by " + req.Photographer + "."
	if req.LocationName != nil {
		system += "\nThe photo was taken in or near " + *req.LocationName + "."
	}

	payload := messagesRequest{
		Model:       g.model,
		MaxTokens:   maxTokens,
		Temperature: 0,
		System:      system,
		Messages:    []message{{Role: "user", Content: blocks}},
	}
	return json.Marshal(payload)
}

func imageBlock(path string) (contentBlock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return contentBlock{}, err
	}
	return contentBlock{
		Type: "image",
		Source: &imageSource{
			Type:      "base64",
			MediaType: mediaType(path),
			Data:      base64.StdEncoding.EncodeToString(data),
		},
	}, nil
}

func mediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// attempt issues a single captioning call. retryable marks rate limiting and
// schema violations, the two conditions worth spending backoff budget on.
func (g *Generator) attempt(ctx context.Context, body []byte) (result *Result, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build caption request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("caption request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("caption service rate limited the request")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("caption service returned status %d", resp.StatusCode)
	}

	var decoded messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, true, fmt.Errorf("failed to decode caption response: %w", err)
	}

	parsed, err := parseResult(decoded)
	if err != nil {
		return nil, true, err
	}
	return parsed, false, nil
}

// parseResult enforces the structured-output contract.
func parseResult(resp messagesResponse) (*Result, error) {
	if len(resp.Content) == 0 || resp.Content[0].Text == "" {
		return nil, fmt.Errorf("caption response contained no text content")
	}

	var result Result
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Content[0].Text)), &result); err != nil {
		return nil, fmt.Errorf("caption response is not valid schema JSON: %w", err)
	}
	if result.Caption == "" {
		return nil, fmt.Errorf("caption response is missing the caption field")
	}
	for _, p := range result.PointsOfInterest {
		if p.Name == "" {
			return nil, fmt.Errorf("caption response contains an unnamed point of interest")
		}
	}
	if result.PointsOfInterest == nil {
		result.PointsOfInterest = []PointOfInterest{}
	}
	return &result, nil
}

package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/helpdesk-micro/tracker-service/internal/logger"
)

const systemPrompt = `You are a ticket classifier. Return ONLY valid JSON:
{ "category": "...", "explanation": "...", "confidence": 0.00 }
Categories: ["Billing","Technical","Account","Other"].
Confidence must be between 0 and 1 with two decimals.`

// settings are re-read from the environment on every call so an operator can
// flip OPENAI_CLASSIFY_ENABLED without restarting the process.
type settings struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func loadSettings() settings {
	s := settings{
		Enabled: isTruthy(os.Getenv("OPENAI_CLASSIFY_ENABLED")),
		APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")), "/"),
		Model:   strings.TrimSpace(os.Getenv("OPENAI_MODEL")),
		Timeout: 30 * time.Second,
	}
	if s.BaseURL == "" {
		s.BaseURL = "https://api.openai.com"
	}
	if s.Model == "" {
		s.Model = "gpt-4o-mini"
	}
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			s.Timeout = time.Duration(n) * time.Second
		}
	}
	return s
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// OpenAI classifies tickets through the chat completions API, degrading to
// the wrapped fallback on any configuration gap or call failure.
type OpenAI struct {
	log        *logger.Logger
	fallback   Classifier
	httpClient *http.Client
}

func NewOpenAI(log *logger.Logger, fallback Classifier) *OpenAI {
	return &OpenAI{
		log:        log.With("component", "classifier"),
		fallback:   fallback,
		httpClient: &http.Client{},
	}
}

func (c *OpenAI) Classify(ctx context.Context, subject, body string) Result {
	s := loadSettings()
	if !s.Enabled {
		return c.fallback.Classify(ctx, subject, body)
	}
	if s.APIKey == "" {
		c.log.Warn("classification enabled but OPENAI_API_KEY is empty, using fallback")
		return c.fallback.Classify(ctx, subject, body)
	}
	res, err := c.call(ctx, s, subject, body)
	if err != nil {
		c.log.Warn("external classification failed, using fallback", "error", err)
		return c.fallback.Classify(ctx, subject, body)
	}
	return res
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAI) call(ctx context.Context, s settings, subject, body string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	reqBody := chatRequest{
		Model: s.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Subject: %s\n\nBody:\n%s", subject, body)},
		},
	}
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/v1/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return Result{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("openai http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return Result{}, fmt.Errorf("response has no choices")
	}

	obj, ok := firstJSONObject(cr.Choices[0].Message.Content)
	if !ok {
		return Result{}, fmt.Errorf("no JSON object in model output")
	}
	var out Result
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return Result{}, fmt.Errorf("decode classification: %w", err)
	}
	return sanitize(out), nil
}

// Package llm implements the collaborator contracts on an OpenAI-compatible
// chat completions endpoint.
package llm

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/collab"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/logger"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/metrics"
)

// #endregion

// #region config

// ErrMalformedReply is returned when the model answer cannot be parsed.
var ErrMalformedReply = errors.New("malformed model reply")

// Config holds the endpoint and pacing settings.
type Config struct {
	APIKey            string  `koanf:"api_key"`
	BaseURL           string  `koanf:"base_url"`
	Model             string  `koanf:"model"`
	Temperature       float32 `koanf:"temperature"`
	MaxTokens         int     `koanf:"max_tokens"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// DefaultConfig returns conservative defaults for a hosted endpoint.
func DefaultConfig() Config {
	return Config{
		Model:             "gpt-4o-mini",
		Temperature:       0.8,
		MaxTokens:         400,
		RequestsPerSecond: 2,
		Burst:             1,
	}
}

// #endregion

// #region client

// Client serves every collaborator role from one chat model.
type Client struct {
	api      *openai.Client
	cfg      Config
	alphabet *narrative.Alphabet
	limiter  *rate.Limiter
	log      logger.Logger
	metrics  *metrics.Manager
}

// New creates a client. alpha is the label set offered to the classifier.
func New(cfg Config, alpha *narrative.Alphabet, log logger.Logger, m *metrics.Manager) (*Client, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm client: api key or base url required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		api:      openai.NewClientWithConfig(oc),
		cfg:      cfg,
		alphabet: alpha,
		limiter:  rate.NewLimiter(limit, max(cfg.Burst, 1)),
		log:      log,
		metrics:  m,
	}, nil
}

// Suite exposes the client in every collaborator role.
func (c *Client) Suite() collab.Suite {
	return collab.Suite{Classifier: c, Generator: c, Verifier: c, Evaluator: c}
}

// #endregion

// #region complete

func (c *Client) complete(ctx context.Context, op, system, user string, jsonReply bool) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.cfg.Temperature,
	}
	if c.cfg.MaxTokens > 0 {
		req.MaxCompletionTokens = c.cfg.MaxTokens
	}
	if jsonReply {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	c.metrics.ObserveCollaborator(op, time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.log.Error(ctx, "chat completion failed", logger.String("operation", op), logger.Error(err))
		return "", fmt.Errorf("%s: %w: %w", op, collab.ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices: %w", op, collab.ErrUnavailable)
	}
	c.log.Debug(ctx, "chat completion", logger.String("operation", op),
		logger.String("finish_reason", string(resp.Choices[0].FinishReason)))
	return resp.Choices[0].Message.Content, nil
}

// #endregion

// #region classify

// Classify implements collab.Classifier. Answers that match no label are
// returned verbatim so the caller can coerce them.
func (c *Client) Classify(ctx context.Context, text string) (narrative.Label, error) {
	reply, err := c.complete(ctx, "classify", classifierSystem, classifyPrompt(c.alphabet, text), false)
	if err != nil {
		return "", err
	}
	return ParseLabel(c.alphabet, reply), nil
}

// ParseLabel matches a free-form answer against the alphabet, ignoring case,
// surrounding punctuation and spaces written for underscores.
func ParseLabel(alpha *narrative.Alphabet, reply string) narrative.Label {
	cleaned := strings.Trim(strings.TrimSpace(reply), " .:*`'\"-")
	if i := strings.IndexAny(cleaned, "\n"); i >= 0 {
		cleaned = strings.TrimSpace(cleaned[:i])
	}
	norm := normalizeLabel(cleaned)
	for _, l := range alpha.Labels() {
		if normalizeLabel(string(l)) == norm {
			return l
		}
	}
	return narrative.Label(cleaned)
}

func normalizeLabel(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

// #endregion

// #region generate

// Generate implements collab.Generator.
func (c *Client) Generate(ctx context.Context, req collab.GenerateRequest) (string, error) {
	reply, err := c.complete(ctx, "generate", generatorSystem, generatePrompt(req), false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// #endregion

// #region verify

type verdictReply struct {
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
}

// Verify implements collab.Verifier.
func (c *Client) Verify(ctx context.Context, text string, target narrative.Label) (collab.Verdict, error) {
	reply, err := c.complete(ctx, "verify", verifierSystem, verifyPrompt(text, target), true)
	if err != nil {
		return collab.Verdict{}, err
	}
	var v verdictReply
	if err := decodeJSON(reply, &v); err != nil {
		return collab.Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	return collab.Verdict{Verified: v.Verified, Confidence: min(max(v.Confidence, 0), 1)}, nil
}

// #endregion

// #region evaluate

type scoresReply struct {
	Scores map[string]float64 `json:"scores"`
	Notes  string             `json:"notes"`
}

// Evaluate implements collab.Evaluator.
func (c *Client) Evaluate(ctx context.Context, text string, steps []narrative.Step) (collab.Scores, error) {
	reply, err := c.complete(ctx, "evaluate", evaluatorSystem, evaluatePrompt(text, steps), true)
	if err != nil {
		return collab.Scores{}, err
	}
	var s scoresReply
	if err := decodeJSON(reply, &s); err != nil {
		return collab.Scores{}, fmt.Errorf("decode scores: %w", err)
	}
	return collab.Scores{Values: s.Scores, Notes: s.Notes}, nil
}

// #endregion

// #region json

// decodeJSON parses the first JSON object in reply, tolerating code fences
// and surrounding prose.
func decodeJSON(reply string, v any) error {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return ErrMalformedReply
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}
	return nil
}

// #endregion

// Package insight talks to the generative-text service. Every operation has a
// documented fallback answer: callers never see an error from this package.
package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/labstack/echo/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"
	"go.uber.org/ratelimit"

	"peerpulse-backend/internal/telemetry"
)

type Config struct {
	APIKey  string
	BaseURL string
	// FastModel serves short interactive calls, ProModel the analytical ones
	FastModel         string
	ProModel          string
	RequestsPerSecond int
	MaxRetries        int
}

type Gateway struct {
	client  *openai.Client
	fast    string
	pro     string
	limiter ratelimit.Limiter
	logger  echo.Logger
}

var (
	errNoChoices = errors.New("no choices in response")
	errShape     = errors.New("response does not match the expected shape")
	errEmpty     = errors.New("empty response")
)

const (
	outcomeOK           = "ok"
	outcomeNoCredential = "no_credential"
	outcomeSkipped      = "skipped"
	outcomeFailed       = "failed"
)

// New builds a gateway. Without an API key it never calls out and every
// operation answers with its static fallback.
func New(cfg Config, logger echo.Logger) *Gateway {
	g := &Gateway{
		fast:   cfg.FastModel,
		pro:    cfg.ProModel,
		logger: logger,
	}
	if g.fast == "" {
		g.fast = "gpt-4o-mini"
	}
	if g.pro == "" {
		g.pro = "gpt-4o"
	}

	if cfg.APIKey == "" {
		logger.Warn("API_KEY not configured, AI features will return static answers")
		return g
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	g.client = &client

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	g.limiter = ratelimit.New(rps)

	return g
}

// Enabled reports whether a credential is configured
func (g *Gateway) Enabled() bool {
	return g.client != nil
}

type completion struct {
	model      string
	messages   []openai.ChatCompletionMessageParamUnion
	schemaName string
	schema     any
}

func (g *Gateway) complete(ctx context.Context, req completion) (string, error) {
	g.limiter.Take()

	params := openai.ChatCompletionNewParams{
		Model:    req.model,
		Messages: req.messages,
	}
	if req.schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.schemaName,
					Schema: req.schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// structured runs a schema-bearing completion. The raw answer must satisfy
// shape before it is decoded into result.
func (g *Gateway) structured(ctx context.Context, req completion, shape func(gjson.Result) bool, result any) error {
	content, err := g.complete(ctx, req)
	if err != nil {
		return err
	}
	if !gjson.Valid(content) || !shape(gjson.Parse(content)) {
		return fmt.Errorf("%w: %.200s", errShape, content)
	}
	return json.Unmarshal([]byte(content), result)
}

func (g *Gateway) record(operation, outcome string) {
	telemetry.InsightCalls.WithLabelValues(operation, outcome).Inc()
}

func (g *Gateway) fail(operation string, err error) {
	g.record(operation, outcomeFailed)
	g.logger.Errorf("insight %s: %v", operation, err)
}

func generateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func isStringArray(r gjson.Result) bool {
	if !r.IsArray() {
		return false
	}
	for _, item := range r.Array() {
		if item.Type != gjson.String {
			return false
		}
	}
	return true
}

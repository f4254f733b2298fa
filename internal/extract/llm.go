package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a medical information extraction assistant. You read oncology imaging reports in Portuguese or English and extract lesion measurements, exam dates, and treatment mentions. Respond with strict JSON only."

type llmFailureClass int

const (
	failureNone llmFailureClass = iota
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

// Caller abstracts one LLM round trip so extraction logic can be tested
// against fakes.
type Caller interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// NewCaller selects a provider implementation. Supported providers are
// "anthropic" and "openai"; baseURL overrides the endpoint for
// OpenAI-compatible servers.
func NewCaller(provider, apiKey, model, baseURL string) (Caller, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm api key not configured")
	}
	switch strings.ToLower(provider) {
	case "anthropic":
		c := anthropic.NewClient(option.WithAPIKey(apiKey))
		return &AnthropicCaller{messages: &c.Messages, model: model}, nil
	case "openai":
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		return &OpenAICaller{client: openai.NewClientWithConfig(cfg), model: model}, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", provider)
	}
}

// AnthropicMessager is the slice of the Anthropic client the caller needs.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicCaller struct {
	messages AnthropicMessager
	model    string
}

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	model := anthropic.Model(a.model)
	if a.model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       model,
		MaxTokens:   4096,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

type OpenAICaller struct {
	client *openai.Client
	model  string
}

func (o *OpenAICaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	model := o.model
	if model == "" {
		model = openai.GPT4oMini
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// AttemptMetrics reports how hard the executor had to work.
type AttemptMetrics struct {
	Attempts       int
	ContentRetries int
}

// Executor runs one strict-JSON exchange with retries. Transport failures
// that look transient back off and retry; malformed content gets corrective
// feedback appended to the next attempt.
type Executor struct {
	caller Caller
}

func NewExecutor(caller Caller) *Executor {
	return &Executor{caller: caller}
}

func (e *Executor) Run(ctx context.Context, name, prompt string, out any, validate func() error) (AttemptMetrics, error) {
	metrics := AttemptMetrics{}
	feedback := ""
	for attempt := 1; attempt <= 3; attempt++ {
		metrics.Attempts = attempt
		fullPrompt := prompt + "\n\nRespond with only valid JSON matching the schema."
		if feedback != "" {
			fullPrompt += "\n\n" + feedback
		}

		raw, err := e.caller.GenerateJSON(ctx, fullPrompt)
		if err != nil {
			class := classifyTransportError(err)
			if class == failureTimeout || class == failureRateLimit || class == failureServer {
				if attempt < 3 {
					time.Sleep(backoffDelay(attempt))
					continue
				}
			}
			return metrics, fmt.Errorf("%s transport failure: %w", name, err)
		}

		raw = strings.TrimSpace(raw)
		if raw == "" {
			if attempt < 3 {
				metrics.ContentRetries++
				feedback = "Your previous response was empty. Respond with valid JSON."
				continue
			}
			return metrics, fmt.Errorf("%s failed: empty response", name)
		}

		clean := stripCodeFences(raw)
		if err := json.Unmarshal([]byte(clean), out); err != nil {
			if attempt < 3 {
				metrics.ContentRetries++
				feedback = "Your previous response was not valid JSON. Respond with only valid JSON."
				continue
			}
			return metrics, fmt.Errorf("%s failed json parse: %w", name, err)
		}
		if err := validate(); err != nil {
			if attempt < 3 {
				metrics.ContentRetries++
				feedback = fmt.Sprintf("Your response failed validation: %s. Fix these issues.", err)
				continue
			}
			return metrics, fmt.Errorf("%s failed validation: %w", name, err)
		}
		return metrics, nil
	}
	return metrics, fmt.Errorf("%s failed after retries", name)
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func classifyTransportError(err error) llmFailureClass {
	msg := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	switch {
	case strings.Contains(msg, "429"):
		return failureRateLimit
	case strings.Contains(msg, " 5") || strings.Contains(msg, "status code: 5") || strings.Contains(msg, "server error"):
		return failureServer
	case strings.Contains(msg, " 4") || strings.Contains(msg, "status code: 4"):
		return failureClient
	default:
		return failureServer
	}
}

func backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	return 2 * time.Second
}

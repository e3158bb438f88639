package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const systemPrompt = "You are a helpful assistant for course syllabi."

var ErrSynthesisUnavailable = errors.New("answer synthesis unavailable")

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Passage struct {
	Title string
	Page  int
	Text  string
}

type SynthesisRequest struct {
	Question string
	Passages []Passage
	History  []ChatMessage
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (string, error)
}

// UnavailableSynthesizer is selected when no provider is configured.
type UnavailableSynthesizer struct{}

func (UnavailableSynthesizer) Synthesize(context.Context, SynthesisRequest) (string, error) {
	return "", ErrSynthesisUnavailable
}

type OpenAISynthesizerConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

type OpenAISynthesizer struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	limiter     *rate.Limiter
}

func NewOpenAISynthesizer(cfg OpenAISynthesizerConfig) (*OpenAISynthesizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrSynthesisUnavailable)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAISynthesizer{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		limiter:     newLimiter(2, 2),
	}, nil
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSynthesisUnavailable, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    BuildMessages(req),
		Temperature: s.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSynthesisUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrSynthesisUnavailable)
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("%w: empty answer", ErrSynthesisUnavailable)
	}
	return answer, nil
}

// BuildMessages lays out system prompt, prior turns and the question with
// its context. Only user and assistant turns are kept from history.
func BuildMessages(req SynthesisRequest) []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	for _, m := range req.History {
		if m.Role != openai.ChatMessageRoleUser && m.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(req.Question)
	b.WriteString("\n\nUse the context below and include citations like [page].\n\nContext:\n")
	for i, p := range req.Passages {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "[%s p.%d] %s", p.Title, p.Page, p.Text)
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: b.String()})
	return messages
}

// Package ai wraps the language model used for intent routing, dining
// recommendations and result formatting.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nsavelyev/maitre/internal/domain"
)

// Intent is the routing decision for an incoming message.
type Intent int

const (
	// IntentRecommendation asks for dining suggestions. Answered from the
	// model directly, no browser involved.
	IntentRecommendation Intent = 1
	// IntentSearch asks for live availability on a reservation platform.
	IntentSearch Intent = 2
	// IntentBooking asks to place a reservation.
	IntentBooking Intent = 3
)

func (i Intent) String() string {
	switch i {
	case IntentRecommendation:
		return "recommendation"
	case IntentSearch:
		return "search"
	case IntentBooking:
		return "booking"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

const classifySystemPrompt = `You route messages for a restaurant booking assistant.
Classify the user's latest message, using the conversation so far for context:
1 - asking for restaurant recommendations or general dining advice
2 - asking to check real-time availability at a specific restaurant
3 - asking to book a table or continuing an in-progress booking
Answer with the single digit only.`

const recommendSystemPrompt = `You are a knowledgeable dining concierge.
Give concise, concrete restaurant recommendations with a sentence on why each
fits. Ask at most one clarifying question, and only when the request is too
vague to act on.`

const formatSystemPrompt = `You present raw browser automation output to a
restaurant booking user. Rewrite it as a short, friendly message. Keep every
time slot, date and restaurant name exactly as given. Do not invent details.`

// Client calls the language model.
type Client struct {
	oc     openai.Client
	model  openai.ChatModel
	logger *slog.Logger
}

// NewClient creates a model client.
func NewClient(apiKey, model string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		oc:     openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModel(model),
		logger: logger,
	}
}

// ClassifyIntent routes a message to recommendation, search or booking.
// Unparseable model output falls back to IntentSearch, which degrades to a
// clarifying flow instead of a wrong answer.
func (c *Client) ClassifyIntent(ctx context.Context, text string, history []domain.HistoryMessage) (Intent, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(classifySystemPrompt),
	}
	messages = append(messages, historyMessages(history)...)
	messages = append(messages, openai.UserMessage(text))

	resp, err := c.oc.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return 0, fmt.Errorf("classify intent: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("classify intent: empty response")
	}

	intent, ok := parseIntent(resp.Choices[0].Message.Content)
	if !ok {
		c.logger.Warn("Unparseable intent, falling back to search",
			"raw", resp.Choices[0].Message.Content)
		return IntentSearch, nil
	}
	return intent, nil
}

// Recommend answers a dining recommendation request from model knowledge.
func (c *Client) Recommend(ctx context.Context, text string, history []domain.HistoryMessage) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(recommendSystemPrompt),
	}
	messages = append(messages, historyMessages(history)...)
	messages = append(messages, openai.UserMessage(text))

	resp, err := c.oc.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("recommend: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("recommend: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// FormatResult rewrites raw automation output for the user. On model failure
// the raw text is returned as-is; a rough answer beats no answer.
func (c *Client) FormatResult(ctx context.Context, raw string) string {
	resp, err := c.oc.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(formatSystemPrompt),
			openai.UserMessage(raw),
		},
	})
	if err != nil || len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		c.logger.Warn("Result formatting failed, returning raw output", "error", err)
		return raw
	}
	return resp.Choices[0].Message.Content
}

// historyMessages converts stored chat history into model messages,
// most-recent-last.
func historyMessages(history []domain.HistoryMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case domain.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// parseIntent extracts the routing digit from model output.
func parseIntent(raw string) (Intent, bool) {
	s := strings.TrimSpace(raw)
	for _, r := range s {
		switch r {
		case '1':
			return IntentRecommendation, true
		case '2':
			return IntentSearch, true
		case '3':
			return IntentBooking, true
		}
	}
	return 0, false
}

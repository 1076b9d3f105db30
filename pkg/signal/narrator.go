package signal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"tradepulse/pkg/strategy"
)

const (
	narratorTimeout = 15 * time.Second
	narratorSystem  = "You are a concise trading assistant. In at most two sentences, explain the setup behind the signal for a human reader. No advice, no disclaimers."
)

// Narrator enriches signals with a short human-readable note. Optional and
// best effort: any failure returns an empty string and the signal goes out
// without a narrative.
type Narrator struct {
	client openai.Client
	model  string
}

// NewNarrator builds a narrator against an OpenAI-compatible endpoint.
// baseURL may be empty for the default API.
func NewNarrator(apiKey, baseURL, model string) *Narrator {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Narrator{client: openai.NewClient(opts...), model: model}
}

// Narrate returns a short description of the signal, or "" on any failure.
func (n *Narrator) Narrate(ctx context.Context, sig *strategy.Signal) string {
	if n == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, narratorTimeout)
	defer cancel()

	prompt := fmt.Sprintf("Signal: %s %s on %s (%s bars) at %.4f, confidence %.2f. Trigger: %s.",
		sig.Strategy, sig.Direction, sig.Symbol, sig.Interval, sig.Price, sig.Confidence, sig.Reason)

	completion, err := n.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(n.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(narratorSystem),
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(120),
	})
	if err != nil || len(completion.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content)
}

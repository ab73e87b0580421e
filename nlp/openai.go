package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultIntentModel = "gpt-4o-mini"

const intentSystemPrompt = `You classify the intent of a phone caller inside an IVR.
Reply with a JSON object: {"intent": "<label>", "confidence": <0..1>}.
Use only the intent labels listed in the session context "intents" entry.`

// IntentDecider resolves intelligent-dialogue nodes by asking an LLM to
// classify the caller's collected input into one of the node's edge
// labels.
type IntentDecider struct {
	client *openai.Client
	model  string
}

func NewIntentDecider(apiKey, model string) (*IntentDecider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = defaultIntentModel
	}
	return &IntentDecider{client: openai.NewClient(apiKey), model: model}, nil
}

type intentAnswer struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

func (d *IntentDecider) Decide(ctx context.Context, sessionCtx map[string]string) (string, float64, error) {
	user, err := json.Marshal(sessionCtx)
	if err != nil {
		return "", 0, fmt.Errorf("encoding session context: %w", err)
	}

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: intentSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(user)},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", 0, fmt.Errorf("intent completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, fmt.Errorf("intent completion returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.Trim(content, "` \n")

	var ans intentAnswer
	if err := json.Unmarshal([]byte(content), &ans); err != nil {
		return "", 0, fmt.Errorf("parsing intent answer %q: %w", content, err)
	}
	return ans.Intent, ans.Confidence, nil
}

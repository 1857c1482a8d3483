package llm

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
)

type ClaudeClient struct {
	client *anthropic.Client
	model  string
}

func NewClaudeClient(apiKey, model, baseURL string) *ClaudeClient {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &ClaudeClient{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

func (c *ClaudeClient) Generate(ctx context.Context, messages []Message) (string, error) {
	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
	}
	// The Anthropic API takes the system instruction out of band.
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			req.System = m.Content
		case RoleAssistant:
			req.Messages = append(req.Messages, anthropic.NewAssistantTextMessage(m.Content))
		default:
			req.Messages = append(req.Messages, anthropic.NewUserTextMessage(m.Content))
		}
	}

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Content) > 0 && resp.Content[0].Text != nil {
		return *resp.Content[0].Text, nil
	}
	return "", fmt.Errorf("no response content")
}

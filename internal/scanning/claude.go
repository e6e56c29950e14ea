package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Claude implements the PageClassifier interface using the Anthropic Messages API
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// NewClaude creates a new Claude PageClassifier instance
func NewClaude(apiKey string, modelName string) (*Claude, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if modelName == "" {
		modelName = "claude-sonnet-4-20250514"
	}

	return &Claude{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     modelName,
		maxTokens: 4096,
		timeout:   90 * time.Second,
	}, nil
}

// ClassifyPage sends one page image to Claude and returns the text reply
func (c *Claude) ClassifyPage(ctx context.Context, pageImage []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(pageImage)),
				anthropic.NewTextBlock(pageClassificationPrompt),
			),
		},
	})
	if err != nil {
		return "", fmt.Errorf("calling anthropic API: %w", err)
	}

	var responseText strings.Builder
	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			responseText.WriteString(b.Text)
		}
	}
	if strings.TrimSpace(responseText.String()) == "" {
		return "", ErrEmptyResponse
	}

	return responseText.String(), nil
}

// Close is a no-op; the Anthropic client holds no resources
func (c *Claude) Close() error {
	return nil
}

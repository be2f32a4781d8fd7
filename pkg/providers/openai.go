package providers

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type OpenAIClient struct {
	client *openai.Client
}

var (
	once   sync.Once
	client *OpenAIClient
)

func newOpenAIClient(params ProviderParams) *OpenAIClient {
	var client *openai.Client
	if params.APIKey != "" {
		client = openai.NewClient(
			option.WithAPIKey(params.APIKey),
			option.WithBaseURL(params.BaseURL),
		)
	} else {
		client = openai.NewClient(
			option.WithBaseURL(params.BaseURL),
		)
	}
	log.Println("Using Base URL", params.BaseURL)
	return &OpenAIClient{
		client: client,
	}
}

// OpenAi returns the process-wide OpenAI client. Options only apply to
// the first call.
func OpenAi(ctx context.Context, opts ...ProviderOption) *OpenAIClient {
	once.Do(func() {
		params := &ProviderParams{}
		for _, opt := range opts {
			opt(params)
		}

		if params.BaseURL == "" {
			params.BaseURL = os.Getenv("OPENAI_API_BASE_URL")
			if params.BaseURL == "" {
				params.BaseURL = "https://api.openai.com/v1/"
			}
		}
		if params.APIKey == "" {
			params.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		client = newOpenAIClient(*params)
	})
	return client
}

func (c *OpenAIClient) Complete(ctx context.Context, model string, prompt string) (string, error) {
	chatCompletion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		}),
		Model: openai.F(model),
	})
	if err != nil {
		return "", err
	}
	if len(chatCompletion.Choices) == 0 {
		return "", fmt.Errorf("model %s returned no choices", model)
	}
	return chatCompletion.Choices[0].Message.Content, nil
}

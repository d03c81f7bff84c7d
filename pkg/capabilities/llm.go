package capabilities

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/artistscloud/a9ents-sub000/pkg/capabilities/providercache"
)

// GenerateRequest is the single "generate text" contract: provider wire
// formats stay behind this call.
type GenerateRequest struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// GenerateFunc produces text for a request or fails with a ProviderError.
type GenerateFunc func(ctx context.Context, req GenerateRequest) (string, error)

// LLMClient generates text through an OpenAI-compatible chat completions
// endpoint, resolving per-provider settings through the provider cache.
type LLMClient struct {
	httpClient *http.Client
	providers  *providercache.Cache
}

// NewLLMClient creates a client. A nil httpClient falls back to
// http.DefaultClient.
func NewLLMClient(httpClient *http.Client, providers *providercache.Cache) *LLMClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &LLMClient{
		httpClient: httpClient,
		providers:  providers,
	}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate produces text for the given prompt.
func (c *LLMClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	config, err := c.providers.Get(ctx, req.Provider)
	if err != nil {
		return "", Errorf(ErrorKindProvider, "provider %s not configured: %v", req.Provider, err)
	}

	model := req.Model
	if model == "" {
		model = config.DefaultModel
	}

	payload, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", Errorf(ErrorKindProvider, "failed to encode request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", Errorf(ErrorKindProvider, "failed to build request: %v", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", Errorf(ErrorKindTimeout, "provider %s timed out", req.Provider)
		}

		return "", Errorf(ErrorKindProvider, "provider %s unreachable: %v", req.Provider, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Errorf(ErrorKindProvider, "failed to read provider response: %v", err)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", Errorf(ErrorKindProvider, "invalid provider response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := fmt.Sprintf("status %d", resp.StatusCode)
		if completion.Error != nil {
			detail = completion.Error.Message
		}

		return "", Errorf(ErrorKindProvider, "provider %s rejected request: %s", req.Provider, detail)
	}

	if len(completion.Choices) == 0 {
		return "", Errorf(ErrorKindProvider, "provider %s returned no choices", req.Provider)
	}

	return completion.Choices[0].Message.Content, nil
}

package llm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
)

// BedrockClient invokes an Anthropic-family model through AWS Bedrock's
// InvokeModel API. Grounded on pkg/artifacts/s3_store.go's
// config.LoadDefaultConfig(ctx, ...) credential-loading convention,
// and on openai.go's manual net/http request-building style, signed
// with the SDK's SigV4 signer since InvokeModel has no generated
// client in this module's dependency set.
type BedrockClient struct {
	region    string
	modelID   string
	endpoint  string
	awsConfig awsConfigLoader
}

type awsConfigLoader func(ctx context.Context) (accessKeyID, secretAccessKey, sessionToken string, err error)

func NewBedrockClient(region, modelID string) *BedrockClient {
	return &BedrockClient{
		region:   region,
		modelID:  modelID,
		endpoint: fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region),
		awsConfig: func(ctx context.Context) (string, string, string, error) {
			cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
			if err != nil {
				return "", "", "", fmt.Errorf("bedrock: load AWS config: %w", err)
			}
			creds, err := cfg.Credentials.Retrieve(ctx)
			if err != nil {
				return "", "", "", fmt.Errorf("bedrock: retrieve credentials: %w", err)
			}
			return creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken, nil
		},
	}
}

type bedrockAnthropicRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Messages         []Message        `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
	TopP             float64          `json:"top_p,omitempty"`
	Tools            []ToolDefinition `json:"tools,omitempty"`
}

type bedrockAnthropicResponse struct {
	Content []struct {
		Type  string         `json:"type"`
		Text  string         `json:"text,omitempty"`
		ID    string         `json:"id,omitempty"`
		Name  string         `json:"name,omitempty"`
		Input map[string]any `json:"input,omitempty"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (c *BedrockClient) Chat(ctx context.Context, msgs []Message, tools []ToolDefinition, options *SamplingOptions) (*Response, error) {
	reqBody := bedrockAnthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        4096,
		Messages:         msgs,
		Tools:            tools,
	}
	if options != nil {
		reqBody.Temperature = options.Temperature
		reqBody.TopP = options.TopP
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("bedrock: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/model/%s/invoke", c.endpoint, c.modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("bedrock: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if err := c.sign(ctx, req, body); err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bedrock: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bedrock: invoke model error %d: %s", resp.StatusCode, string(respBody))
	}

	var bResp bedrockAnthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&bResp); err != nil {
		return nil, fmt.Errorf("bedrock: decode response: %w", err)
	}

	var content string
	var toolCalls []ToolCall
	for _, block := range bResp.Content {
		switch block.Type {
		case "text":
			content += block.Text
		case "tool_use":
			toolCalls = append(toolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: block.Input})
		}
	}

	return &Response{
		Content:   content,
		ToolCalls: toolCalls,
		Usage: Usage{
			PromptTokens:     bResp.Usage.InputTokens,
			CompletionTokens: bResp.Usage.OutputTokens,
		},
	}, nil
}

func (c *BedrockClient) sign(ctx context.Context, req *http.Request, body []byte) error {
	accessKeyID, secretAccessKey, sessionToken, err := c.awsConfig(ctx)
	if err != nil {
		return err
	}

	hash := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(hash[:])

	creds := aws.Credentials{AccessKeyID: accessKeyID, SecretAccessKey: secretAccessKey, SessionToken: sessionToken}
	signer := v4.NewSigner()
	return signer.SignHTTP(ctx, creds, req, payloadHash, "bedrock", c.region, time.Now())
}

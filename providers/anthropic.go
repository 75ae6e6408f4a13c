package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"

	"taskflow/config"
	"taskflow/models"
)

const (
	anthropicVersion = "2023-06-01"
	defaultMaxTokens = 8192
)

// AnthropicClient handles streaming communication with the Claude API.
// It is a pure function of its model config; the Service caches instances
// and replaces them wholesale on model-change events.
type AnthropicClient struct {
	httpClient *http.Client
	model      models.Config
}

// NewAnthropicClient creates a client bound to one model configuration
func NewAnthropicClient(model models.Config) *AnthropicClient {
	return &AnthropicClient{
		httpClient: &http.Client{},
		model:      model,
	}
}

// wire types for the messages API

type wireContent struct {
	Type      string      `json:"type"`
	Text      string      `json:"text,omitempty"`
	ID        string      `json:"id,omitempty"`
	Name      string      `json:"name,omitempty"`
	Input     interface{} `json:"input,omitempty"`
	ToolUseID string      `json:"tool_use_id,omitempty"`
	Content   string      `json:"content,omitempty"`
}

type wireMessage struct {
	Role    string        `json:"role"`
	Content []wireContent `json:"content"`
}

type wireTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type wireRequest struct {
	Model     string        `json:"model"`
	Messages  []wireMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
	Stream    bool          `json:"stream"`
	System    string        `json:"system,omitempty"`
	Tools     []wireTool    `json:"tools,omitempty"`
}

// Stream sends the request and feeds parsed SSE events to onEvent
func (c *AnthropicClient) Stream(ctx context.Context, req ChatRequest, onEvent func(StreamEvent) error) error {
	wire := wireRequest{
		Model:     c.modelName(req.Model),
		Messages:  convertMessages(req.Messages),
		MaxTokens: req.MaxTokens,
		Stream:    true,
		System:    req.System,
	}
	if wire.MaxTokens <= 0 {
		wire.MaxTokens = c.model.MaxTokens
	}
	if wire.MaxTokens <= 0 {
		wire.MaxTokens = defaultMaxTokens
	}
	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, wireTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	requestBody, err := json.Marshal(wire)
	if err != nil {
		return serr.Wrap(err, "failed to marshal request")
	}

	apiURL := c.model.BaseURL
	if apiURL == "" {
		apiURL = config.Get().AnthropicAPIURL
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewReader(requestBody))
	if err != nil {
		return serr.Wrap(err, "failed to create request")
	}

	apiKey := c.model.APIKey
	if apiKey == "" {
		apiKey = config.Get().AnthropicAPIKey
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Accept", "text/event-stream")

	logger.Debug("Anthropic stream request", "model", wire.Model, "messages", len(wire.Messages), "tools", len(wire.Tools))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return serr.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return serr.New(fmt.Sprintf("API error: %s - %s", resp.Status, string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}

		var event StreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			logger.LogErr(err, "failed to parse stream event")
			continue
		}

		if err := onEvent(event); err != nil {
			return serr.Wrap(err, "error in event handler")
		}
		if event.Type == "message_stop" {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return serr.Wrap(err, "failed to read stream")
	}

	return nil
}

// modelName prefers an explicit per-request model over the bound config
func (c *AnthropicClient) modelName(requested string) string {
	if requested != "" {
		return requested
	}
	return c.model.Name
}

// convertMessages maps internal messages to the wire format. Tool results
// travel as user-role tool_result blocks; assistant tool calls as tool_use
// blocks.
func convertMessages(messages []Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleTool:
			contents := make([]wireContent, 0, len(msg.ToolResults))
			for _, tr := range msg.ToolResults {
				contents = append(contents, wireContent{
					Type:      "tool_result",
					ToolUseID: tr.ToolCallID,
					Content:   tr.Content,
				})
			}
			out = append(out, wireMessage{Role: "user", Content: contents})

		case RoleAssistant:
			var contents []wireContent
			if msg.Content != "" {
				contents = append(contents, wireContent{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var input interface{}
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
					input = map[string]interface{}{}
				}
				contents = append(contents, wireContent{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: input,
				})
			}
			out = append(out, wireMessage{Role: "assistant", Content: contents})

		default:
			// System messages ride in the request's system field; anything
			// else is user content
			out = append(out, wireMessage{
				Role:    "user",
				Content: []wireContent{{Type: "text", Text: msg.Content}},
			})
		}
	}
	return out
}

package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// StreamResult is one fully merged assistant turn assembled from stream
// chunks, plus the character accounting for the call
type StreamResult struct {
	Text            string
	ToolCalls       []ToolCall
	EarlyTerminated bool
	InputChars      int
	OutputChars     int
}

// AssistantMessage converts the merged result into a conversation message
func (r *StreamResult) AssistantMessage() Message {
	return Message{Role: RoleAssistant, Content: r.Text, ToolCalls: r.ToolCalls}
}

// blockState accumulates one content block while its deltas stream in
type blockState struct {
	kind     string // "text" or "tool_use"
	text     strings.Builder
	toolID   string
	toolName string
	argsJSON strings.Builder
}

// ProcessStream issues the call and merges partial chunks into a final
// assistant turn. Early termination means the model produced text but no
// tool calls, which stalls the agent loop.
func ProcessStream(ctx context.Context, client ChatClient, req ChatRequest, label string) (*StreamResult, error) {
	blocks := make(map[int]*blockState)
	order := []int{}

	err := client.Stream(ctx, req, func(event StreamEvent) error {
		switch event.Type {
		case "content_block_start":
			var block struct {
				Type  string          `json:"type"`
				ID    string          `json:"id"`
				Name  string          `json:"name"`
				Input json.RawMessage `json:"input"`
			}
			if err := json.Unmarshal(event.Block, &block); err != nil {
				logger.LogErr(err, "failed to parse content block start", "label", label)
				return nil
			}
			bs := &blockState{kind: block.Type, toolID: block.ID, toolName: block.Name}
			blocks[event.Index] = bs
			order = append(order, event.Index)

		case "content_block_delta":
			var delta struct {
				Type        string `json:"type"`
				Text        string `json:"text"`
				PartialJSON string `json:"partial_json"`
			}
			if err := json.Unmarshal(event.Delta, &delta); err != nil {
				logger.LogErr(err, "failed to parse content block delta", "label", label)
				return nil
			}
			bs, ok := blocks[event.Index]
			if !ok {
				bs = &blockState{kind: "text"}
				blocks[event.Index] = bs
				order = append(order, event.Index)
			}
			switch delta.Type {
			case "text_delta":
				bs.text.WriteString(delta.Text)
			case "input_json_delta":
				bs.argsJSON.WriteString(delta.PartialJSON)
			}
		}
		return nil
	})
	if err != nil {
		return nil, serr.Wrap(err, "LLM stream failed", "label", label)
	}

	result := &StreamResult{}
	var textParts []string
	for _, idx := range order {
		bs := blocks[idx]
		switch bs.kind {
		case "tool_use":
			args := bs.argsJSON.String()
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        bs.toolID,
				Name:      bs.toolName,
				Arguments: args,
			})
		default:
			if bs.text.Len() > 0 {
				textParts = append(textParts, bs.text.String())
			}
		}
	}
	result.Text = strings.Join(textParts, "\n")

	// Text-only responses cannot advance the loop
	result.EarlyTerminated = len(result.ToolCalls) == 0 && result.Text != ""

	result.InputChars = SerializedLength(append(append([]Message{}, req.Messages...), SystemMessage(req.System)))
	result.OutputChars = SerializedLength([]Message{result.AssistantMessage()})

	logger.Debug("Stream merged", "label", label, "tool_calls", len(result.ToolCalls),
		"text_len", len(result.Text), "early_terminated", result.EarlyTerminated)

	return result, nil
}

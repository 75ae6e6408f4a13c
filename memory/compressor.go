package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rohanthewiz/logger"

	"taskflow/providers"
)

// Compression defaults
const (
	DefaultMaxChars      = 30000
	DefaultSummaryMin    = 3000
	DefaultSummaryMax    = 4000
	DefaultRetentionRatio = 0.4

	// ConfirmationMessage keeps the strict user/assistant alternation after
	// a snapshot is injected as a user message
	ConfirmationMessage = "Got it. Thanks for the additional context!"
)

// Summarizer produces the state snapshot text from a summarization prompt
type Summarizer interface {
	Summarize(ctx context.Context, system, user string) (string, error)
}

// CompressorConfig tunes the compressor thresholds
type CompressorConfig struct {
	MaxChars       int
	SummaryMin     int
	SummaryMax     int
	RetentionRatio float64
}

// DefaultCompressorConfig returns the standard thresholds
func DefaultCompressorConfig() CompressorConfig {
	return CompressorConfig{
		MaxChars:       DefaultMaxChars,
		SummaryMin:     DefaultSummaryMin,
		SummaryMax:     DefaultSummaryMax,
		RetentionRatio: DefaultRetentionRatio,
	}
}

// Compressor bounds memory growth by summarizing older dialog rounds into a
// structured snapshot while keeping recent rounds verbatim
type Compressor struct {
	store      *ConversationStore
	summarizer Summarizer
	cfg        CompressorConfig
}

// NewCompressor creates a memory compressor
func NewCompressor(store *ConversationStore, summarizer Summarizer, cfg CompressorConfig) *Compressor {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.SummaryMin <= 0 {
		cfg.SummaryMin = DefaultSummaryMin
	}
	if cfg.SummaryMax <= 0 {
		cfg.SummaryMax = DefaultSummaryMax
	}
	if cfg.RetentionRatio <= 0 {
		cfg.RetentionRatio = DefaultRetentionRatio
	}
	return &Compressor{store: store, summarizer: summarizer, cfg: cfg}
}

// TotalChars measures a message list the way it is actually sent to the
// model: by JSON serialization
func (c *Compressor) TotalChars(messages []providers.Message) int {
	return providers.SerializedLength(messages)
}

// MaxChars returns the configured compression threshold
func (c *Compressor) MaxChars() int {
	return c.cfg.MaxChars
}

// CheckAndCompressIfNeeded compresses conversation and agent memory when
// their combined serialized size exceeds the threshold. Conversation memory
// is compressed first through the store, then agent memory in place; the
// (possibly new) agent list is returned.
func (c *Compressor) CheckAndCompressIfNeeded(ctx context.Context, conversationID string, agentMessages []providers.Message) []providers.Message {
	if agentMessages == nil {
		agentMessages = []providers.Message{}
	}

	var conversationMessages []providers.Message
	if conversationID != "" && c.store != nil {
		conversationMessages = c.store.Get(conversationID)
	}

	combined := make([]providers.Message, 0, len(conversationMessages)+len(agentMessages))
	combined = append(combined, conversationMessages...)
	combined = append(combined, agentMessages...)

	totalChars := c.TotalChars(combined)
	if totalChars <= c.cfg.MaxChars {
		return agentMessages
	}

	logger.Info("Total memory size exceeds limit, compressing",
		"total_chars", totalChars, "max_chars", c.cfg.MaxChars, "conversation_id", conversationID)

	if conversationID != "" && len(conversationMessages) > 0 {
		c.ForceCompressConversation(ctx, conversationID)
	}

	if len(agentMessages) > 0 {
		return c.ForceCompressAgentMemory(ctx, agentMessages)
	}
	return agentMessages
}

// ForceCompressConversation rebuilds one conversation's memory regardless of
// its current size
func (c *Compressor) ForceCompressConversation(ctx context.Context, conversationID string) {
	if c.store == nil || conversationID == "" {
		return
	}

	messages := c.store.Get(conversationID)
	if len(messages) == 0 {
		return
	}

	compressed, changed := c.compress(ctx, messages)
	if !changed {
		return
	}

	c.store.Replace(conversationID, compressed)
	logger.Info("Compressed conversation memory", "conversation_id", conversationID,
		"before", len(messages), "after", len(compressed))
}

// ForceCompressAgentMemory compresses an agent's in-memory message list and
// returns the new list. Bypasses the size gate; used to break repeat-result
// loops.
func (c *Compressor) ForceCompressAgentMemory(ctx context.Context, messages []providers.Message) []providers.Message {
	if len(messages) == 0 {
		return messages
	}

	compressed, changed := c.compress(ctx, messages)
	if !changed {
		return messages
	}
	logger.Info("Force compressed agent memory", "before", len(messages), "after", len(compressed))
	return compressed
}

// compress runs round selection and summarization over a message list.
// Returns the rebuilt list and whether anything was summarized.
func (c *Compressor) compress(ctx context.Context, messages []providers.Message) ([]providers.Message, bool) {
	rounds := GroupMessagesIntoRounds(messages)
	if len(rounds) == 0 {
		return messages, false
	}

	totalChars := 0
	for i := range rounds {
		totalChars += rounds[i].TotalChars()
	}
	targetRetention := int(float64(totalChars) * c.cfg.RetentionRatio)
	if totalChars <= 0 || targetRetention <= 0 {
		return messages, false
	}

	keep, summarize := selectRounds(rounds, targetRetention)
	if len(summarize) == 0 {
		return messages, false
	}

	summaryMsg := c.summarizeRounds(ctx, summarize)

	rebuilt := make([]providers.Message, 0, len(messages))
	rebuilt = append(rebuilt, summaryMsg)
	rebuilt = append(rebuilt, providers.AssistantMessage(ConfirmationMessage))
	rebuilt = append(rebuilt, FlattenRounds(keep)...)
	return rebuilt, true
}

// selectRounds walks rounds newest to oldest, keeping rounds until the
// retention target would be exceeded. The newest round is always kept.
func selectRounds(rounds []Round, targetRetention int) (keep []Round, summarize []Round) {
	accumulated := 0
	cut := len(rounds) - 1 // index of oldest kept round

	for i := len(rounds) - 1; i >= 0; i-- {
		roundChars := rounds[i].TotalChars()
		if i == len(rounds)-1 {
			accumulated += roundChars
			cut = i
			continue
		}
		if accumulated+roundChars <= targetRetention {
			accumulated += roundChars
			cut = i
		} else {
			break
		}
	}

	keep = append(keep, rounds[cut:]...)
	summarize = append(summarize, rounds[:cut]...)
	return keep, summarize
}

const snapshotSystemPrompt = "You are a helpful assistant that creates structured state_snapshot summaries. " +
	"Always output valid XML in the exact format requested."

// summarizeRounds asks the LLM for a state_snapshot of the rounds being
// dropped, wrapped as a user message
func (c *Compressor) summarizeRounds(ctx context.Context, rounds []Round) providers.Message {
	all := FlattenRounds(rounds)

	history, err := json.Marshal(all)
	var conversationHistory string
	if err != nil {
		logger.LogErr(err, "failed to serialize rounds for summarization, using fallback text")
		conversationHistory = roleTaggedText(all)
	} else {
		conversationHistory = string(history)
	}

	prompt := fmt.Sprintf(`First, reason in your scratchpad. Then, generate the <state_snapshot>.

Analyze the following conversation history and create a structured state_snapshot XML.
The state_snapshot should be between %d and %d characters total.

Required XML structure:
<state_snapshot>
<overall_goal>
[The main objective or goal of the conversation]
</overall_goal>
<key_knowledge>
[Important facts, commands, configurations, URLs, file paths, and key information discovered]
</key_knowledge>
<file_system_state>
[Files that were created, modified, deleted, or accessed (use prefixes: CREATED, MODIFIED, DELETED, ACCESSED)]
</file_system_state>
<recent_actions>
[Recent tool calls, commands executed, searches performed, and actions taken]
</recent_actions>
<current_plan>
[Current plan items with status: [DONE], [IN PROGRESS], [PENDING]]
</current_plan>
</state_snapshot>

Guidelines:
- Preserve all critical information: URLs, file paths, commands, configurations
- Include tool names and their results when relevant
- Track file system changes accurately
- Maintain plan status and progress
- Keep the total length between %d and %d characters
- Output the XML content directly, no additional text before or after

Conversation history:
%s
`, c.cfg.SummaryMin, c.cfg.SummaryMax, c.cfg.SummaryMin, c.cfg.SummaryMax, conversationHistory)

	if c.summarizer == nil {
		logger.Warn("No summarizer configured, using fallback summary")
		return fallbackSummary(len(rounds))
	}

	summary, err := c.summarizer.Summarize(ctx, snapshotSystemPrompt, prompt)
	if err != nil {
		logger.LogErr(err, "failed to summarize dialog rounds")
		return fallbackSummary(len(rounds))
	}

	if len(summary) < c.cfg.SummaryMin {
		logger.Warn("Generated summary is under the target band, using as-is", "chars", len(summary))
	} else if len(summary) > c.cfg.SummaryMax {
		logger.Warn("Generated summary exceeds the target band, truncating", "chars", len(summary))
		summary = summary[:c.cfg.SummaryMax]
	}

	return providers.UserMessage(summary)
}

func fallbackSummary(roundCount int) providers.Message {
	return providers.UserMessage(fmt.Sprintf(
		"Previous conversation history (%d dialog rounds) has been summarized due to length constraints.", roundCount))
}

// roleTaggedText renders messages as human-readable fallback text
func roleTaggedText(messages []providers.Message) string {
	out := ""
	for _, msg := range messages {
		switch msg.Role {
		case providers.RoleUser:
			out += "User: " + msg.Content + "\n\n"
		case providers.RoleAssistant:
			out += "Assistant: " + msg.Content + "\n\n"
		case providers.RoleTool:
			for _, tr := range msg.ToolResults {
				content := tr.Content
				if len(content) > 200 {
					content = content[:200] + "..."
				}
				out += "Tool Response: " + content + "\n\n"
			}
		}
	}
	return out
}

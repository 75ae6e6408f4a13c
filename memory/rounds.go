package memory

import (
	"taskflow/providers"
)

// Round is a maximal contiguous block of messages forming one dialog
// exchange: user→assistant→toolresponse, user→assistant, or
// assistant→toolresponse. Rounds are derived on demand, never stored.
type Round struct {
	Messages []providers.Message
}

// TotalChars sums the content lengths of the round's messages
func (r *Round) TotalChars() int {
	total := 0
	for _, m := range r.Messages {
		total += len(m.Content)
		for _, tr := range m.ToolResults {
			total += len(tr.Content)
		}
		for _, tc := range m.ToolCalls {
			total += len(tc.Arguments)
		}
	}
	return total
}

// GroupMessagesIntoRounds scans messages left to right, closing a round on
// every tool-response message and starting a new round at each user
// message. Unknown message kinds attach to the open round.
func GroupMessagesIntoRounds(messages []providers.Message) []Round {
	var rounds []Round
	var current *Round

	closeCurrent := func() {
		if current != nil {
			rounds = append(rounds, *current)
			current = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case providers.RoleUser:
			closeCurrent()
			current = &Round{Messages: []providers.Message{msg}}

		case providers.RoleAssistant:
			if current != nil {
				hasUser, hasAssistant := false, false
				for _, m := range current.Messages {
					switch m.Role {
					case providers.RoleUser:
						hasUser = true
					case providers.RoleAssistant:
						hasAssistant = true
					}
				}
				if hasUser && !hasAssistant {
					current.Messages = append(current.Messages, msg)
				} else {
					// An assistant with no unanswered user turn before it
					// starts its own round
					closeCurrent()
					current = &Round{Messages: []providers.Message{msg}}
				}
			} else {
				current = &Round{Messages: []providers.Message{msg}}
			}

		case providers.RoleTool:
			if current == nil {
				current = &Round{}
			}
			current.Messages = append(current.Messages, msg)
			closeCurrent()

		default:
			if current != nil {
				current.Messages = append(current.Messages, msg)
			}
		}
	}

	closeCurrent()
	return rounds
}

// FlattenRounds concatenates rounds back into a flat message list
func FlattenRounds(rounds []Round) []providers.Message {
	var out []providers.Message
	for _, r := range rounds {
		out = append(out, r.Messages...)
	}
	return out
}

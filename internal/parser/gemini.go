package parser

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/localarchive/convovault/internal/vaulterr"
)

type geminiConversation struct {
	Title         string              `json:"title"`
	Conversations []geminiMessageJSON `json:"conversations"`
	Messages      []geminiMessageJSON `json:"messages"`
}

// geminiMessageJSON is the tagged-variant representation (§9 design
// note) of Gemini's dynamic message shape: a union of possible text
// fields and a union of possible role-naming fields, normalized by
// firstNonEmpty and role substring matching.
type geminiMessageJSON struct {
	Content      string `json:"content"`
	Text         string `json:"text"`
	PromptText   string `json:"prompt_text"`
	ResponseText string `json:"response_text"`
	Author       string `json:"author"`
	Sender       string `json:"sender"`
	Role         string `json:"role"`
	CreatedAt    string `json:"created_at"`
	Timestamp    string `json:"timestamp"`
	Time         string `json:"time"`
}

// GeminiParser normalizes Gemini's lenient export shape (§4.4): either
// `conversations` or `messages` holds the message list, and both
// content and role are selected from a union of possible field names.
type GeminiParser struct{}

func (GeminiParser) Parse(tx *sql.Tx, provider string, runID, artifactID int64, data []byte) error {
	var convos []geminiConversation
	if err := json.Unmarshal(data, &convos); err != nil {
		return vaulterr.New(vaulterr.ParseJSONFailed, err)
	}
	if len(convos) == 0 {
		return vaulterr.New(vaulterr.SchemaMismatch, fmt.Errorf("no conversations found"))
	}

	foundAny := false
	for _, conv := range convos {
		messages := conv.Conversations
		if messages == nil {
			messages = conv.Messages
		}
		if messages == nil {
			continue
		}
		foundAny = true

		threadID, err := insertThread(tx, provider, "", conv.Title, nil, artifactID, runID)
		if err != nil {
			return vaulterr.New(vaulterr.DBWriteFailed, err)
		}

		for i, gm := range messages {
			content := firstNonEmpty(gm.Content, gm.Text, gm.PromptText, gm.ResponseText)
			role := normalizeGeminiRole(firstNonEmpty(gm.Author, gm.Sender, gm.Role))

			var ts *int64
			if raw := firstNonEmpty(gm.CreatedAt, gm.Timestamp, gm.Time); raw != "" {
				if ms, ok := parseISOMillis(raw); ok {
					ts = &ms
				}
			}

			msg := Message{
				Role:      role,
				Content:   content,
				Timestamp: ts,
				Position:  i,
			}
			if err := insertMessage(tx, threadID, provider, msg, artifactID, runID); err != nil {
				return vaulterr.New(vaulterr.DBWriteFailed, err)
			}
		}
	}

	if !foundAny {
		return vaulterr.New(vaulterr.SchemaMismatch, fmt.Errorf("no conversation had conversations or messages"))
	}

	return nil
}

// normalizeGeminiRole maps any author/sender/role value by
// case-insensitive substring: user stays user; gemini/assistant/
// model/ai collapse to assistant; anything else passes through
// verbatim (§4.4).
func normalizeGeminiRole(raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "user"):
		return "user"
	case strings.Contains(lower, "gemini"), strings.Contains(lower, "assistant"),
		strings.Contains(lower, "model"), strings.Contains(lower, "ai"):
		return "assistant"
	default:
		return raw
	}
}

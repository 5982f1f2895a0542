package parser

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/localarchive/convovault/internal/vaulterr"
)

type claudeConversation struct {
	UUID         string              `json:"uuid"`
	Name         string              `json:"name"`
	CreatedAt    string              `json:"created_at"`
	ChatMessages []claudeChatMessage `json:"chat_messages"`
}

type claudeChatMessage struct {
	UUID      string `json:"uuid"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// ClaudeParser normalizes the `chat_messages` array export shape
// (§4.4). Role is the sender field verbatim — no normalization table
// like Gemini's, since Claude's exports only ever emit "human" and
// "assistant".
type ClaudeParser struct{}

func (ClaudeParser) Parse(tx *sql.Tx, provider string, runID, artifactID int64, data []byte) error {
	var convos []claudeConversation
	if err := json.Unmarshal(data, &convos); err != nil {
		return vaulterr.New(vaulterr.ParseJSONFailed, err)
	}
	if len(convos) == 0 {
		return vaulterr.New(vaulterr.SchemaMismatch, fmt.Errorf("no conversations found"))
	}

	foundAny := false
	for _, conv := range convos {
		if conv.ChatMessages == nil {
			continue
		}
		foundAny = true

		var createdAt *int64
		if ms, ok := parseISOMillis(conv.CreatedAt); ok {
			createdAt = &ms
		}

		threadID, err := insertThread(tx, provider, conv.UUID, conv.Name, createdAt, artifactID, runID)
		if err != nil {
			return vaulterr.New(vaulterr.DBWriteFailed, err)
		}

		for i, cm := range conv.ChatMessages {
			var ts *int64
			if ms, ok := parseISOMillis(cm.CreatedAt); ok {
				ts = &ms
			}

			msg := Message{
				ProviderMessageID: cm.UUID,
				Role:              cm.Sender,
				Content:           cm.Text,
				Timestamp:         ts,
				Position:          i,
			}
			if err := insertMessage(tx, threadID, provider, msg, artifactID, runID); err != nil {
				return vaulterr.New(vaulterr.DBWriteFailed, err)
			}
		}
	}

	if !foundAny {
		return vaulterr.New(vaulterr.SchemaMismatch, fmt.Errorf("no conversation had chat_messages"))
	}

	return nil
}

func parseISOMillis(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return 0, false
		}
	}
	return t.UnixMilli(), true
}

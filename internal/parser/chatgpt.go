package parser

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/localarchive/convovault/internal/vaulterr"
)

type chatgptConversation struct {
	ID         string                 `json:"id"`
	Title      string                 `json:"title"`
	CreateTime float64                `json:"create_time"`
	Mapping    map[string]chatgptNode `json:"mapping"`
}

type chatgptNode struct {
	Message *chatgptMessage `json:"message"`
	Parent  *string         `json:"parent"`
}

type chatgptMessage struct {
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	Content struct {
		ContentType string   `json:"content_type"`
		Parts       []string `json:"parts"`
	} `json:"content"`
	CreateTime *float64 `json:"create_time"`
}

// ChatGPTParser normalizes the `mapping` node-graph export shape
// (§4.4). Only content_type=="text" nodes are imported; other types
// (tool calls, images) are skipped silently, matching the source's
// observed behavior (open question, left as-is).
type ChatGPTParser struct{}

func (ChatGPTParser) Parse(tx *sql.Tx, provider string, runID, artifactID int64, data []byte) error {
	var convos []chatgptConversation
	if err := json.Unmarshal(data, &convos); err != nil {
		return vaulterr.New(vaulterr.ParseJSONFailed, err)
	}
	if len(convos) == 0 {
		return vaulterr.New(vaulterr.SchemaMismatch, fmt.Errorf("no conversations found"))
	}

	foundAny := false
	for _, conv := range convos {
		if conv.Mapping == nil {
			continue
		}
		foundAny = true

		createdAt := int64(conv.CreateTime * 1000)
		threadID, err := insertThread(tx, provider, conv.ID, conv.Title, &createdAt, artifactID, runID)
		if err != nil {
			return vaulterr.New(vaulterr.DBWriteFailed, err)
		}

		position := 0
		for nodeID, node := range conv.Mapping {
			if node.Message == nil {
				continue
			}
			if node.Message.Content.ContentType != "text" {
				continue
			}
			content := strings.Join(node.Message.Content.Parts, "\n")

			var ts *int64
			if node.Message.CreateTime != nil {
				t := int64(*node.Message.CreateTime * 1000)
				ts = &t
			}

			parentID := ""
			if node.Parent != nil {
				parentID = *node.Parent
			}

			m := Message{
				ProviderMessageID:       nodeID,
				Role:                    node.Message.Author.Role,
				Content:                 content,
				Timestamp:               ts,
				Position:                position,
				ParentProviderMessageID: parentID,
			}
			if err := insertMessage(tx, threadID, provider, m, artifactID, runID); err != nil {
				return vaulterr.New(vaulterr.DBWriteFailed, err)
			}
			position++
		}
	}

	if !foundAny {
		return vaulterr.New(vaulterr.SchemaMismatch, fmt.Errorf("no conversation had a mapping graph"))
	}

	return nil
}

// Package parser normalizes raw export bytes from each provider into
// the shared Thread/Message shape and inserts rows for them inside a
// transaction the caller owns. The content-block-walking style here
// (extract displayable text from a provider-specific union shape,
// join parts, hash the raw content) is carried over from the teacher's
// internal/claude/messages.go, adapted from Claude Code's live JSONL
// session format to the three vendor export formats in scope here.
package parser

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"regexp"
	"strings"
)

// Thread is the normalized shape a parser inserts one of per
// conversation found in its input.
type Thread struct {
	ProviderThreadID string
	Title            string
	CreatedAt        *int64
}

// Message is the normalized shape a parser inserts one of per
// utterance, in parser-emission order.
type Message struct {
	ProviderMessageID       string
	Role                    string
	Content                 string
	Timestamp               *int64
	Position                int
	ParentProviderMessageID string
}

// Parser normalizes raw bytes belonging to one artifact into threads
// and messages, writing them through tx. provider is the vendor tag;
// runID and artifactID stamp every inserted row for forensic lineage.
type Parser interface {
	Parse(tx *sql.Tx, provider string, runID, artifactID int64, data []byte) error
}

// insertThread writes one thread row and returns its id.
func insertThread(tx *sql.Tx, provider, providerThreadID, title string, createdAt *int64, artifactID, runID int64) (int64, error) {
	var pid sql.NullString
	if providerThreadID != "" {
		pid = sql.NullString{String: providerThreadID, Valid: true}
	}
	var created sql.NullInt64
	if createdAt != nil {
		created = sql.NullInt64{Int64: *createdAt, Valid: true}
	}

	res, err := tx.Exec(`
		INSERT INTO threads (provider, provider_thread_id, title, created_at, artifact_id, run_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, provider, pid, title, created, artifactID, runID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// insertMessage writes one message row, computing its content hash.
func insertMessage(tx *sql.Tx, threadID int64, provider string, m Message, artifactID, runID int64) error {
	sum := sha256.Sum256([]byte(m.Content))
	hash := hex.EncodeToString(sum[:])

	var providerMsgID sql.NullString
	if m.ProviderMessageID != "" {
		providerMsgID = sql.NullString{String: m.ProviderMessageID, Valid: true}
	}
	var ts sql.NullInt64
	if m.Timestamp != nil {
		ts = sql.NullInt64{Int64: *m.Timestamp, Valid: true}
	}
	var parent sql.NullString
	if m.ParentProviderMessageID != "" {
		parent = sql.NullString{String: m.ParentProviderMessageID, Valid: true}
	}

	_, err := tx.Exec(`
		INSERT INTO messages
			(thread_id, provider, provider_message_id, role, content, content_plain,
			 timestamp, position, parent_provider_message_id, content_hash, artifact_id, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, threadID, provider, providerMsgID, m.Role, m.Content, plainText(provider, m.Content),
		ts, m.Position, parent, hash, artifactID, runID)
	return err
}

var markdownChars = regexp.MustCompile("[#*`]")

// stripMarkdown removes the subset of Markdown punctuation the source
// normalizer strips for ChatGPT and Claude content (§4.4): headings,
// emphasis asterisks, and code-span backticks.
func stripMarkdown(s string) string {
	return markdownChars.ReplaceAllString(s, "")
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// stripHTMLTags removes all HTML tags, used by the ChatGPT HTML
// fallback parser to produce plain-text content.
func stripHTMLTags(s string) string {
	return strings.TrimSpace(htmlTag.ReplaceAllString(s, " "))
}

// plainText picks the normalization rule by provider/shape. HTML-origin
// content is tag-stripped by the caller before reaching here; this
// covers the two JSON-origin providers that strip Markdown punctuation.
func plainText(provider, content string) string {
	switch provider {
	case "chatgpt", "claude":
		return stripMarkdown(content)
	default:
		return content
	}
}

// firstNonEmpty returns the first non-empty string among candidates,
// the "first non-empty field" combinator the Gemini parser needs for
// its lenient field selection (§4.4, §9 design note).
func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

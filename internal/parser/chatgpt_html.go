package parser

import (
	"database/sql"
	"fmt"
	"regexp"

	"github.com/localarchive/convovault/internal/vaulterr"
)

var messageBlockRe = regexp.MustCompile(`(?s)<div class="message">\s*<div class="author">(.*?)</div>\s*<div class="content">(.*?)</div>\s*</div>`)

// ChatGPTHTMLParser is the best-effort fallback used only when a
// chat.html entry is encountered instead of (or alongside)
// conversations.json (§4.4); when an archive holds both, both are
// parsed, as SPEC_FULL.md §9 records. It regex-scans message
// blocks rather than parsing real HTML because the export's markup is
// not well-formed enough to guarantee a DOM parse, and the source
// implementation is itself regex-based.
type ChatGPTHTMLParser struct{}

func (ChatGPTHTMLParser) Parse(tx *sql.Tx, provider string, runID, artifactID int64, data []byte) error {
	html := string(data)
	blocks := messageBlockRe.FindAllStringSubmatch(html, -1)
	if len(blocks) == 0 {
		return vaulterr.New(vaulterr.HTMLNoMessages, fmt.Errorf("no message blocks matched"))
	}

	threadID, err := insertThread(tx, provider, "", "Imported chat.html", nil, artifactID, runID)
	if err != nil {
		return vaulterr.New(vaulterr.DBWriteFailed, err)
	}

	for i, block := range blocks {
		role := stripHTMLTags(block[1])
		content := stripHTMLTags(block[2])

		msg := Message{
			Role:     role,
			Content:  content,
			Position: i,
		}
		if err := insertMessage(tx, threadID, provider, msg, artifactID, runID); err != nil {
			return vaulterr.New(vaulterr.DBWriteFailed, err)
		}
	}

	return nil
}

// Package prompt assembles bounded prompt context: greedy packing of ranked
// source chunks and rolling conversation trimming.
package prompt

import (
	"fmt"
	"strings"

	"ragchat/internal/domain"
)

const blockSeparator = "\n---\n"

// Packer greedily builds a source-context string from ranked hits,
// respecting a hard character budget.
type Packer struct {
	// SnippetLen bounds how much of each chunk is quoted.
	SnippetLen int
}

func NewPacker(snippetLen int) *Packer {
	if snippetLen <= 0 {
		snippetLen = 1000
	}
	return &Packer{SnippetLen: snippetLen}
}

// Pack appends one attributed "Source N" block per hit in rank order,
// stopping before the next block would exceed maxTotal. It returns the
// packed context and the chunks that actually made it in, so attribution
// reflects the prompt, not the retrieval.
func (p *Packer) Pack(hits []domain.SearchHit, maxTotal int) (string, []domain.Chunk) {
	if maxTotal <= 0 || len(hits) == 0 {
		return "", nil
	}
	var blocks []string
	var used []domain.Chunk
	total := 0
	for i, hit := range hits {
		block := p.formatBlock(i+1, hit.Chunk)
		cost := len(block)
		if len(blocks) > 0 {
			cost += len(blockSeparator)
		}
		if total+cost > maxTotal {
			break
		}
		blocks = append(blocks, block)
		used = append(used, hit.Chunk)
		total += cost
	}
	return strings.Join(blocks, blockSeparator), used
}

func (p *Packer) formatBlock(n int, chunk domain.Chunk) string {
	title := chunk.SourceTitle
	if title == "" {
		title = chunk.SourceID
	}
	snippet := chunk.Content
	if runes := []rune(snippet); len(runes) > p.SnippetLen {
		snippet = string(runes[:p.SnippetLen])
	}
	return fmt.Sprintf("Source %d (%s):\n%s\n", n, title, snippet)
}

// FormatTurn serializes a conversation turn for the rolling context.
func FormatTurn(turn domain.Turn) string {
	switch turn.Role {
	case domain.RoleAssistant:
		return "Assistant: " + turn.Text
	default:
		return "User: " + turn.Text
	}
}

// AppendTurn appends new conversation text to the rolling context and, only
// when the combined length exceeds max, drops whole lines from the oldest
// end until it fits. The newest turn is never truncated: if it alone
// exceeds the budget it is returned intact.
func AppendTurn(existing, turn string, max int) string {
	combined := turn
	if existing != "" {
		combined = existing + "\n" + turn
	}
	if max <= 0 || len(combined) <= max {
		return combined
	}
	lines := strings.Split(combined, "\n")
	turnLines := strings.Count(turn, "\n") + 1
	for len(lines) > turnLines && len(strings.Join(lines, "\n")) > max {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

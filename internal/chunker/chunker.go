// Package chunker splits source text into overlapping fixed-size chunks.
package chunker

import (
	"strconv"
	"strings"

	"ragchat/internal/domain"
)

// CharChunker splits text into character-bounded chunks with overlap so
// passages spanning a boundary stay retrievable from both sides.
type CharChunker struct {
	size    int
	overlap int
}

func NewCharChunker(size, overlap int) *CharChunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &CharChunker{size: size, overlap: overlap}
}

// Chunk splits text into chunks tagged with session and source attribution.
// Chunks that are empty after trimming are dropped; Index preserves the
// position within the source document.
func (c *CharChunker) Chunk(sessionID, sourceID, title string, sourceType domain.SourceType, text string) []domain.Chunk {
	runes := []rune(text)
	var chunks []domain.Chunk
	idx := 0
	for start := 0; start < len(runes); {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, domain.Chunk{
				ID:          sourceID + ":" + strconv.Itoa(idx),
				SourceID:    sourceID,
				SourceTitle: title,
				SourceType:  sourceType,
				SessionID:   sessionID,
				Content:     content,
				Index:       idx,
			})
			idx++
		}
		if end == len(runes) {
			break
		}
		start = end - c.overlap
	}
	return chunks
}

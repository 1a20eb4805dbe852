package rank

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func hit(id, content string, score float64) domain.SearchHit {
	return domain.SearchHit{
		Chunk: domain.Chunk{ID: id, SourceID: id, Content: content},
		Score: score,
	}
}

func TestFilterEmptyInput(t *testing.T) {
	f := New(DefaultConfig())
	assert.Empty(t, f.Filter(nil, "anything", 3))
}

func TestFilterScoreFloor(t *testing.T) {
	f := New(DefaultConfig())
	hits := []domain.SearchHit{
		hit("a", "the sky is blue today", 0.9),
		hit("b", "the sky is very cloudy", 0.05),
	}
	out := f.Filter(hits, "what color is the sky", 3)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Chunk.ID)
}

func TestFilterLexicalRelevance(t *testing.T) {
	f := New(DefaultConfig())
	hits := []domain.SearchHit{
		hit("relevant", "the sky is blue and clear", 0.5),
		// high score but shares no words with the query
		hit("offtopic", "quarterly revenue grew by twelve percent", 0.8),
	}
	out := f.Filter(hits, "what color is the sky", 3)
	require.Len(t, out, 1)
	assert.Equal(t, "relevant", out[0].Chunk.ID)
}

func TestFilterDeduplicatesByLeadingContent(t *testing.T) {
	f := New(DefaultConfig())
	passage := strings.Repeat("the sky is blue ", 20) // > 200 chars
	hits := []domain.SearchHit{
		hit("a", passage+"tail one", 0.9),
		hit("b", passage+"tail two", 0.7),
	}
	out := f.Filter(hits, "sky blue", 3)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Chunk.ID)
}

func TestFilterSortsAndCaps(t *testing.T) {
	f := New(DefaultConfig())
	hits := []domain.SearchHit{
		hit("low", "sky one alpha", 0.3),
		hit("high", "sky two beta", 0.9),
		hit("mid", "sky three gamma", 0.6),
		hit("lowest", "sky four delta", 0.2),
	}
	out := f.Filter(hits, "sky", 3)
	require.Len(t, out, 3)
	assert.Equal(t, "high", out[0].Chunk.ID)
	assert.Equal(t, "mid", out[1].Chunk.ID)
	assert.Equal(t, "low", out[2].Chunk.ID)
}

func TestFilterEmptyQueryKeepsNothing(t *testing.T) {
	f := New(DefaultConfig())
	hits := []domain.SearchHit{hit("a", "content here", 0.9)}
	assert.Empty(t, f.Filter(hits, "", 3))
}

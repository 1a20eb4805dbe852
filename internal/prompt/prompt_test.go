package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func hit(sourceID, title, content string, score float64) domain.SearchHit {
	return domain.SearchHit{
		Chunk: domain.Chunk{SourceID: sourceID, SourceTitle: title, Content: content},
		Score: score,
	}
}

func TestPackFormatsAttributedBlocks(t *testing.T) {
	p := NewPacker(1000)
	ctx, used := p.Pack([]domain.SearchHit{
		hit("doc1", "Doc One", "The sky is blue.", 0.9),
		hit("doc2", "Doc Two", "Grass is green.", 0.5),
	}, 4000)
	assert.Contains(t, ctx, "Source 1 (Doc One):\nThe sky is blue.")
	assert.Contains(t, ctx, "Source 2 (Doc Two):\nGrass is green.")
	assert.Contains(t, ctx, "\n---\n")
	require.Len(t, used, 2)
	assert.Equal(t, "doc1", used[0].SourceID)
}

func TestPackBudgetInvariant(t *testing.T) {
	p := NewPacker(1000)
	long := strings.Repeat("word ", 300)
	hits := []domain.SearchHit{
		hit("a", "A", long, 0.9),
		hit("b", "B", long, 0.8),
		hit("c", "C", long, 0.7),
	}
	for _, budget := range []int{0, 10, 100, 500, 1200, 5000} {
		ctx, _ := p.Pack(hits, budget)
		assert.LessOrEqual(t, len(ctx), budget, "budget %d", budget)
	}
}

func TestPackStopsAtBudgetInRankOrder(t *testing.T) {
	p := NewPacker(1000)
	block := strings.Repeat("x", 200)
	hits := []domain.SearchHit{
		hit("first", "First", block, 0.9),
		hit("second", "Second", block, 0.8),
	}
	// budget fits one block but not two
	ctx, used := p.Pack(hits, 260)
	require.Len(t, used, 1)
	assert.Equal(t, "first", used[0].SourceID)
	assert.Contains(t, ctx, "Source 1 (First):")
	assert.NotContains(t, ctx, "Second")
}

func TestPackSnippetBound(t *testing.T) {
	p := NewPacker(50)
	ctx, used := p.Pack([]domain.SearchHit{
		hit("a", "A", strings.Repeat("y", 500), 0.9),
	}, 10000)
	require.Len(t, used, 1)
	assert.Contains(t, ctx, strings.Repeat("y", 50))
	assert.NotContains(t, ctx, strings.Repeat("y", 51))
}

func TestPackEmpty(t *testing.T) {
	p := NewPacker(1000)
	ctx, used := p.Pack(nil, 1000)
	assert.Empty(t, ctx)
	assert.Empty(t, used)
}

func TestAppendTurnNoTrimNeeded(t *testing.T) {
	out := AppendTurn("User: hi", "Assistant: hello", 1000)
	assert.Equal(t, "User: hi\nAssistant: hello", out)
}

func TestAppendTurnDropsOldestLines(t *testing.T) {
	existing := "User: first\nAssistant: second\nUser: third"
	newest := "Assistant: the newest reply"
	out := AppendTurn(existing, newest, len(newest)+len("User: third")+1)
	assert.True(t, strings.HasSuffix(out, newest))
	assert.NotContains(t, out, "first")
	assert.Contains(t, out, "third")
}

func TestAppendTurnNeverTruncatesNewest(t *testing.T) {
	newest := "Assistant: " + strings.Repeat("z", 500)
	out := AppendTurn("User: old line", newest, 100)
	assert.Equal(t, newest, out)
}

func TestFormatTurn(t *testing.T) {
	assert.Equal(t, "User: hi", FormatTurn(domain.Turn{Role: domain.RoleUser, Text: "hi"}))
	assert.Equal(t, "Assistant: yo", FormatTurn(domain.Turn{Role: domain.RoleAssistant, Text: "yo"}))
}

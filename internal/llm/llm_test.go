package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "mistral", body["model"])
		assert.Equal(t, false, body["stream"])
		w.Write([]byte(`{"response":"  The sky is blue.  "}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	out, err := c.Generate(context.Background(), "What color is the sky?")
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", out)
}

func TestGenerateBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), "hello")
	assert.Error(t, err)
}

func TestEnhanceQuestion(t *testing.T) {
	assert.Equal(t, "q", EnhanceQuestion("", "q"))
	out := EnhanceQuestion("User: hi\nAssistant: hello", "q")
	assert.Contains(t, out, "Previous conversation:\nUser: hi")
	assert.Contains(t, out, "Current question: q")
}

func TestRAGPromptTruncatesContextNotQuestion(t *testing.T) {
	context := strings.Repeat("c", 5000)
	question := "what is this about?"
	p := RAGPrompt(context, question, 2000)
	assert.Contains(t, p, "...[truncated]")
	assert.Contains(t, p, question)
	assert.Less(t, len(p), 2300)
}

func TestRAGPromptNoTruncationWhenWithinBudget(t *testing.T) {
	p := RAGPrompt("short context", "q", 15000)
	assert.Contains(t, p, "short context")
	assert.NotContains(t, p, "[truncated]")
}

func TestGeneralPrompt(t *testing.T) {
	p := GeneralPrompt("hello there")
	assert.Contains(t, p, "Question: hello there")
	assert.NotContains(t, p, "Context:")
}

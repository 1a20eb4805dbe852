package embedding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct{}

func (failingBackend) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("backend down")
}

type fixedBackend struct{ vec []float32 }

func (b fixedBackend) Embed(context.Context, string) ([]float32, error) {
	return b.vec, nil
}

func TestGatewayZeroVectorOnFailure(t *testing.T) {
	g := NewGateway(failingBackend{}, 4, nil)
	vec := g.EmbedOne(context.Background(), "hello")
	require.Len(t, vec, 4)
	assert.Equal(t, []float32{0, 0, 0, 0}, vec)
}

func TestGatewayZeroVectorOnDimensionMismatch(t *testing.T) {
	g := NewGateway(fixedBackend{vec: []float32{1, 2}}, 4, nil)
	vec := g.EmbedOne(context.Background(), "hello")
	assert.Equal(t, []float32{0, 0, 0, 0}, vec)
}

func TestGatewayPassthrough(t *testing.T) {
	want := []float32{0.1, 0.2, 0.3}
	g := NewGateway(fixedBackend{vec: want}, 3, nil)
	assert.Equal(t, want, g.EmbedOne(context.Background(), "hello"))
}

func TestGatewayEmbedManyAlwaysReturnsAllVectors(t *testing.T) {
	g := NewGateway(failingBackend{}, 2, nil)
	vecs := g.EmbedMany(context.Background(), []string{"a", "b", "c"})
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 2)
	}
}

func TestClientOllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		w.Write([]byte(`{"embedding":[0.5,-0.5]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "nomic-embed-text"})
	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.5}, vec)
}

func TestClientOpenAIShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"embedding":[1,2,3]}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

func TestClientRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"embedding":[1]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, 2, calls)
}

func TestClientProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	assert.NoError(t, c.Probe(context.Background()))

	srv.Close()
	assert.Error(t, c.Probe(context.Background()))
}

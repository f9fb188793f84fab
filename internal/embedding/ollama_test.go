package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/embed", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "hello world", req.Input)

		json.NewEncoder(w).Encode(embedResponse{
			Embeddings: [][]float32{{3, 0, 4, 0}},
		})
	}))
	defer srv.Close()

	provider := NewOllama(srv.URL, "nomic-embed-text", 4)
	vec, err := provider.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.Len(t, vec, 4)

	// The response is normalized to unit length.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[2], 1e-6)
}

func TestOllamaEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	provider := NewOllama(srv.URL, "missing-model", 4)
	_, err := provider.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOllamaEmbedEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{}})
	}))
	defer srv.Close()

	provider := NewOllama(srv.URL, "nomic-embed-text", 4)
	_, err := provider.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no embeddings")
}

func TestOllamaEmbedDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{
			Embeddings: [][]float32{{1, 2}},
		})
	}))
	defer srv.Close()

	provider := NewOllama(srv.URL, "nomic-embed-text", 4)
	_, err := provider.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMBEDDING_DIMENSIONS")
}

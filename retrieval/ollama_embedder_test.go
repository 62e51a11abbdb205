package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpsalud/consultaflow/types"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	var gotReq ollamaEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write([]byte(`{"embeddings": [[0.1, 0.2], [0.3, 0.4]]}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaEmbedderConfig{
		BaseURL: srv.URL, Model: "nomic-embed-text",
	}, nil)

	vectors, err := e.Embed(context.Background(), []string{"uno", "dos"})

	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{0.1, 0.2}, vectors[0])
	assert.Equal(t, []float64{0.3, 0.4}, vectors[1])
	assert.Equal(t, "nomic-embed-text", gotReq.Model)
	assert.Equal(t, []string{"uno", "dos"}, gotReq.Input)
}

func TestOllamaEmbedder_Embed_EmptyInput(t *testing.T) {
	e := NewOllamaEmbedder(OllamaEmbedderConfig{}, nil)

	vectors, err := e.Embed(context.Background(), nil)

	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestOllamaEmbedder_Embed_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings": [[0.1]]}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaEmbedderConfig{BaseURL: srv.URL}, nil)

	_, err := e.Embed(context.Background(), []string{"uno", "dos"})

	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrRetrievalUnavailable))
}

func TestOllamaEmbedder_Embed_DaemonDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	e := NewOllamaEmbedder(OllamaEmbedderConfig{BaseURL: srv.URL}, nil)

	_, err := e.Embed(context.Background(), []string{"uno"})

	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrRetrievalUnavailable))
}

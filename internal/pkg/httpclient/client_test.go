package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/3/transition", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in["state"] == "ORDERED" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"illegal order state transition"}`))
			return
		}
		_, _ = w.Write([]byte(`{"state":"PROGRESSING"}`))
	}))
	defer srv.Close()

	c := NewClient(noop.NewTracerProvider().Tracer("test"), srv.URL)

	var out map[string]string
	require.NoError(t, c.PostJSON(context.Background(), "/orders/3/transition", map[string]string{"state": "progressing"}, &out))
	assert.Equal(t, "PROGRESSING", out["state"])

	err := c.PostJSON(context.Background(), "/orders/3/transition", map[string]string{"state": "ORDERED"}, &out)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusConflict, statusErr.Status)
	assert.Contains(t, statusErr.Error(), "illegal")
}

func TestClient_AcceptedStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"shortages":[{"productId":9}]}`))
	}))
	defer srv.Close()

	c := NewClient(noop.NewTracerProvider().Tracer("test"), srv.URL)
	var out struct {
		Shortages []struct {
			ProductID int64 `json:"productId"`
		} `json:"shortages"`
	}
	require.NoError(t, c.PostJSON(context.Background(), "/checkout", struct{}{}, &out, http.StatusCreated, http.StatusConflict))
	require.Len(t, out.Shortages, 1)
	assert.Equal(t, int64(9), out.Shortages[0].ProductID)
}

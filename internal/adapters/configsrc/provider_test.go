package configsrc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/rtvoice/internal/domain"
)

func TestHTTPProviderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"webrtcEndpoint":"https://x/rtc","deployment":"gpt-4o-realtime","ephemeralKey":"ek"}`))
	}))
	defer srv.Close()

	cfg, err := NewHTTPProvider(srv.URL, 0).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SessionConfig{SignalingEndpoint: "https://x/rtc", Model: "gpt-4o-realtime", Credential: "ek"}, cfg)
}

func TestHTTPProviderErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"AZURE_OPENAI_API_KEY is not set"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(srv.URL, 0).Fetch(context.Background())
	require.EqualError(t, err, "AZURE_OPENAI_API_KEY is not set")
}

func TestHTTPProviderErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(srv.URL, 0).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPProviderMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(srv.URL, 0).Fetch(context.Background())
	require.ErrorContains(t, err, "decode config")
}

func TestStaticProvider(t *testing.T) {
	want := domain.SessionConfig{SignalingEndpoint: "e", Model: "m", Credential: "k"}
	got, err := StaticProvider{Config: want}.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = StaticProvider{Config: want}.Fetch(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

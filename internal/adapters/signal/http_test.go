package signal

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/rtvoice/internal/core"
	"github.com/dkeye/rtvoice/internal/domain"
)

const answerSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

func TestExchangePostsOffer(t *testing.T) {
	var got *http.Request
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/sdp")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, answerSDP)
	}))
	defer srv.Close()

	cfg := domain.SessionConfig{SignalingEndpoint: srv.URL + "/v1/realtimertc", Model: "gpt 4o", Credential: "ek_123"}
	answer, err := NewHTTPSignaler(0).Exchange(context.Background(), cfg, "offer-sdp")
	require.NoError(t, err)

	assert.Equal(t, answerSDP, answer)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/v1/realtimertc", got.URL.Path)
	assert.Equal(t, "gpt 4o", got.URL.Query().Get("model"))
	assert.Equal(t, "Bearer ek_123", got.Header.Get("Authorization"))
	assert.Equal(t, "application/sdp", got.Header.Get("Content-Type"))
	assert.Equal(t, "offer-sdp", body)
}

func TestExchangeErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"unauthorized", http.StatusUnauthorized, "invalid key\n", "401 - invalid key"},
		{"empty", http.StatusOK, "", "empty answer"},
		{"malformed", http.StatusOK, "hello", "malformed answer"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			cfg := domain.SessionConfig{SignalingEndpoint: srv.URL, Model: "m", Credential: "k"}
			_, err := NewHTTPSignaler(0).Exchange(context.Background(), cfg, "offer")
			require.ErrorIs(t, err, core.ErrSignaling)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestExchangeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := domain.SessionConfig{SignalingEndpoint: url, Model: "m", Credential: "k"}
	_, err := NewHTTPSignaler(0).Exchange(context.Background(), cfg, "offer")
	require.ErrorIs(t, err, core.ErrSignaling)
}

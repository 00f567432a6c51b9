package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/amirasaad/btcfx/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			_, _ = io.WriteString(w, `{"ok":true}`)
		case "/limited":
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "stack trace")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	client := NewHTTPClient(time.Second)
	ctx := context.Background()

	body, err := Get(ctx, client, srv.URL+"/ok", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	_, err = Get(ctx, client, srv.URL+"/limited", nil)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.KindRateLimited, derr.Kind)
	assert.Equal(t, time.Minute, derr.Context["retry_after"])
	assert.Equal(t, http.StatusTooManyRequests, derr.Context["status"])

	_, err = Get(ctx, client, srv.URL+"/broken", nil)
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.KindServer, derr.Kind)
	assert.Equal(t, "stack trace", derr.Context["body"])
	assert.True(t, derr.Recoverable)

	_, err = Get(ctx, client, srv.URL+"/missing", nil)
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))
}

func TestGet_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Get(ctx, NewHTTPClient(time.Second), srv.URL, nil)
	assert.True(t, domain.IsKind(err, domain.KindTimeout), err)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryAfter(""))
	assert.Equal(t, 5*time.Second, retryAfter("5"))
	assert.Equal(t, time.Duration(0), retryAfter("soon"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))

	// "€" is three bytes; cutting at 4 would split the second one.
	got := truncate("€€€", 4)
	assert.Equal(t, "€...", got)
	assert.True(t, utf8.ValidString(got))
}

package quotes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch_backend/apperrors"
)

func TestHTTPSource_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "symbol:AAPL")
		fmt.Fprintf(w, `{"data":[{"symbol":"AAPL","price":187.45,"as_of":"2026-08-28T15:30:00Z"}]}`)
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, time.Second)
	quote, err := src.Fetch(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, "187.45", quote.Price.String())
	assert.Equal(t, 2026, quote.AsOf.Year())
}

func TestHTTPSource_FetchNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, time.Second)
	_, err := src.Fetch(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, apperrors.ErrSymbolNotFound)
}

func TestHTTPSource_FetchNotFoundStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, time.Second)
	_, err := src.Fetch(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, apperrors.ErrSymbolNotFound)
}

func TestHTTPSource_FetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, time.Second)
	_, err := src.Fetch(context.Background(), "AAPL")
	assert.ErrorIs(t, err, apperrors.ErrUpstreamError)
}

func TestHTTPSource_FetchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, 50*time.Millisecond)
	_, err := src.Fetch(context.Background(), "AAPL")
	assert.ErrorIs(t, err, apperrors.ErrUpstreamTimeout)
}

func TestHTTPSource_FetchBadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, time.Second)
	_, err := src.Fetch(context.Background(), "AAPL")
	assert.ErrorIs(t, err, apperrors.ErrUpstreamError)
}

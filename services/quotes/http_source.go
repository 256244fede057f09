package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch_backend/apperrors"
)

// DefaultFetchTimeout bounds a single upstream quote call
const DefaultFetchTimeout = 10 * time.Second

// quoteResponse represents the provider's quote payload
type quoteResponse struct {
	Data []struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
		AsOf   string  `json:"as_of"`
	} `json:"data"`
}

// HTTPSource fetches quotes from an HTTP JSON provider
type HTTPSource struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewHTTPSource creates a quote source against the given provider URL.
// A non-positive timeout falls back to DefaultFetchTimeout.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPSource{
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves the current quote for a symbol
func (s *HTTPSource) Fetch(ctx context.Context, symbol string) (Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	url := fmt.Sprintf("%s?q=symbol:%s&size=1", s.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: failed to create request: %v", apperrors.ErrUpstreamError, err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return Quote{}, fmt.Errorf("%w: %s", apperrors.ErrUpstreamTimeout, symbol)
		}
		return Quote{}, fmt.Errorf("%w: %v", apperrors.ErrUpstreamError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Quote{}, fmt.Errorf("%w: %s", apperrors.ErrSymbolNotFound, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Quote{}, fmt.Errorf("%w: status %d: %s", apperrors.ErrUpstreamError, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: failed to read response: %v", apperrors.ErrUpstreamError, err)
	}

	var quoteResp quoteResponse
	if err := json.Unmarshal(body, &quoteResp); err != nil {
		return Quote{}, fmt.Errorf("%w: failed to parse response: %v", apperrors.ErrUpstreamError, err)
	}

	if len(quoteResp.Data) == 0 {
		return Quote{}, fmt.Errorf("%w: %s", apperrors.ErrSymbolNotFound, symbol)
	}

	data := quoteResp.Data[0]
	asOf, err := time.Parse(time.RFC3339, data.AsOf)
	if err != nil {
		asOf = time.Now()
	}

	return Quote{
		Symbol: symbol,
		Price:  decimal.NewFromFloat(data.Price),
		AsOf:   asOf,
	}, nil
}

// isTimeout reports whether a transport error was a timeout
func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

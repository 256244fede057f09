package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pricewatch_backend/apperrors"
)

// DefaultSendTimeout bounds a single gateway call
const DefaultSendTimeout = 15 * time.Second

// sendRequest is the gateway's JSON request body. Single sends use To,
// bulk sends use RegistrationIDs.
type sendRequest struct {
	To              string            `json:"to,omitempty"`
	RegistrationIDs []string          `json:"registration_ids,omitempty"`
	Notification    Payload           `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
}

// sendResponse carries per-token results in request order
type sendResponse struct {
	Results []struct {
		MessageID string `json:"message_id,omitempty"`
		Error     string `json:"error,omitempty"`
	} `json:"results"`
}

// HTTPGateway delivers notifications through an FCM-style HTTP endpoint
type HTTPGateway struct {
	url        string
	serverKey  string
	httpClient *http.Client
}

// NewHTTPGateway creates the gateway client. A missing URL or server
// key is a setup error, fatal at startup rather than per-event.
func NewHTTPGateway(url, serverKey string) (*HTTPGateway, error) {
	if url == "" || serverKey == "" {
		return nil, fmt.Errorf("%w: PUSH_GATEWAY_URL and PUSH_GATEWAY_KEY must be set", apperrors.ErrGatewayMisconfigured)
	}
	return &HTTPGateway{
		url:        url,
		serverKey:  serverKey,
		httpClient: &http.Client{Timeout: DefaultSendTimeout},
	}, nil
}

// SendOne delivers to a single token
func (g *HTTPGateway) SendOne(ctx context.Context, token string, payload Payload) Result {
	resp, err := g.post(ctx, sendRequest{To: token, Notification: payload, Data: payload.Data})
	if err != nil {
		return Result{Token: token, Status: StatusTransient, Detail: err.Error()}
	}
	if len(resp.Results) == 0 {
		return Result{Token: token, Status: StatusTransient, Detail: "empty gateway response"}
	}
	return classify(token, resp.Results[0].Error)
}

// SendMany delivers to many tokens in one gateway call. The gateway
// reports per-token outcomes; a transport failure marks every token
// transient so all are retried on a future trigger.
func (g *HTTPGateway) SendMany(ctx context.Context, tokens []string, payload Payload) []Result {
	results := make([]Result, 0, len(tokens))

	resp, err := g.post(ctx, sendRequest{RegistrationIDs: tokens, Notification: payload, Data: payload.Data})
	if err != nil {
		for _, token := range tokens {
			results = append(results, Result{Token: token, Status: StatusTransient, Detail: err.Error()})
		}
		return results
	}

	for i, token := range tokens {
		if i < len(resp.Results) {
			results = append(results, classify(token, resp.Results[i].Error))
		} else {
			results = append(results, Result{Token: token, Status: StatusTransient, Detail: "missing gateway result"})
		}
	}
	return results
}

// post sends one gateway request and decodes the response
func (g *HTTPGateway) post(ctx context.Context, body sendRequest) (*sendResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+g.serverKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, string(raw))
	}

	var decoded sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to parse gateway response: %w", err)
	}
	return &decoded, nil
}

// classify maps the gateway's per-token error string to an outcome.
// NotRegistered and InvalidRegistration mean the token is dead and
// should stop being targeted; everything else is worth retrying.
func classify(token, gatewayError string) Result {
	switch gatewayError {
	case "":
		return Result{Token: token, Status: StatusOK}
	case "NotRegistered", "InvalidRegistration", "MismatchSenderId":
		return Result{Token: token, Status: StatusInvalidToken, Detail: gatewayError}
	default:
		return Result{Token: token, Status: StatusTransient, Detail: gatewayError}
	}
}

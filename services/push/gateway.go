package push

import "context"

// Delivery outcome classes as reported by the push gateway
const (
	StatusOK           = "ok"
	StatusInvalidToken = "invalid_token"
	StatusTransient    = "transient_error"
)

// Payload is one notification to deliver
type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Result is the delivery outcome for a single token
type Result struct {
	Token  string `json:"token"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Gateway is the external push service. Both paths report per-token
// outcomes; SendMany never aborts the batch over one bad token.
type Gateway interface {
	SendOne(ctx context.Context, token string, payload Payload) Result
	SendMany(ctx context.Context, tokens []string, payload Payload) []Result
}

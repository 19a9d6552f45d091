package transport

import "context"

// Request describes an outbound request.
type Request struct {
	// Method is the HTTP method (GET, POST, PUT, PATCH, DELETE).
	Method string
	// Path is appended to the transport's base URL. A full URL is used
	// as-is.
	Path string
	// Headers are request-specific headers, merged over defaults.
	Headers map[string]string
	// Query are URL query parameters.
	Query map[string]string
	// Body is the request body. Accepts []byte, string, io.Reader, or
	// any value that will be JSON-encoded.
	Body any
}

// Response is the result of a completed request.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport sends one request. Implementations return *Error on
// non-2xx responses and on connection failures.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

package common

const (
	// AuthorizationHeaderName carries the bearer token on HTTP requests and,
	// lowercased, in gRPC metadata.
	AuthorizationHeaderName = "Authorization"

	// BearerScheme is the optional prefix stripped from incoming tokens.
	BearerScheme = "Bearer"

	// CSRFHeaderName carries the nonce required by the rotate action.
	CSRFHeaderName = "X-CSRF-Token"

	// RequestIDHeaderName is echoed on every HTTP response.
	RequestIDHeaderName = "X-Request-ID"

	// APINamespace is the path prefix the mobile client was built against.
	APINamespace = "/wp-json/woo-jwt-auth/v1"
)

package proxy

// CredentialMode selects which client credential a surface forwards.
type CredentialMode int

const (
	// CookieCredential forwards the Cookie header and never Authorization.
	CookieCredential CredentialMode = iota
	// BearerCredential forwards Authorization and never cookies.
	BearerCredential
)

// Surface is one public path prefix mapped onto a backend prefix.
type Surface struct {
	Name           string
	Prefix         string
	BackendPrefix  string
	Credential     CredentialMode
	AllowedHeaders []string
}

// SessionSurface maps /api/proxy/* to backend /api/* for browser sessions.
func SessionSurface() Surface {
	return Surface{
		Name:          "session",
		Prefix:        "/api/proxy",
		BackendPrefix: "/api",
		Credential:    CookieCredential,
		AllowedHeaders: []string{
			"Accept", "Content-Type", "Idempotency-Key", "X-Correlation-ID",
		},
	}
}

// PublicSurface maps /api/public/* to backend /api/v1/* for API clients.
func PublicSurface() Surface {
	return Surface{
		Name:          "public",
		Prefix:        "/api/public",
		BackendPrefix: "/api/v1",
		Credential:    BearerCredential,
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Correlation-ID",
		},
	}
}

package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/utafrali/tenantgate/pkg/httpclient"
)

// ProfileFetcher loads a principal's profile from the identity provider.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, subject string) (Profile, error)
}

// ProviderClient reads profiles from GET {baseURL}/v1/users/{subject}.
type ProviderClient struct {
	baseURL string
	apiKey  string
	client  httpclient.Doer
}

// NewProviderClient creates a client. client is normally a
// *httpclient.CircuitBreakerClient.
func NewProviderClient(baseURL, apiKey string, client httpclient.Doer) *ProviderClient {
	return &ProviderClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// FetchProfile returns the subject's profile, or ErrPrincipalNotFound.
func (c *ProviderClient) FetchProfile(ctx context.Context, subject string) (Profile, error) {
	endpoint := c.baseURL + "/v1/users/" + url.PathEscape(subject)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return Profile{}, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return Profile{}, fmt.Errorf("fetch profile: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return Profile{}, ErrPrincipalNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Profile{}, httpclient.ParseResponseError(resp, "auth-provider")
	}
	defer func() { _ = resp.Body.Close() }()

	var p Profile
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if p.Subject == "" {
		p.Subject = subject
	}
	return p, nil
}

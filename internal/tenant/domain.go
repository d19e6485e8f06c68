// Package tenant classifies inbound requests into product domains using only
// the request's hostname and port.
package tenant

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// Domain is the product context a request belongs to.
type Domain string

const (
	Shop      Domain = "shop"
	Booking   Domain = "booking"
	Showcase  Domain = "showcase"
	Marketing Domain = "marketing"
	API       Domain = "api"
	Dashboard Domain = "dashboard"
)

// Domains lists every product domain.
var Domains = []Domain{Shop, Booking, Showcase, Marketing, API, Dashboard}

// Valid reports whether d is a known product domain.
func (d Domain) Valid() bool {
	switch d {
	case Shop, Booking, Showcase, Marketing, API, Dashboard:
		return true
	}
	return false
}

func (d Domain) String() string { return string(d) }

// ParseDomain converts s to a Domain.
func ParseDomain(s string) (Domain, error) {
	d := Domain(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown product domain %q", s)
	}
	return d, nil
}

// subdomainPrefixes is checked in order; the first matching prefix wins.
var subdomainPrefixes = []struct {
	prefix string
	domain Domain
}{
	{"shop.", Shop},
	{"booking.", Booking},
	{"showcase.", Showcase},
	{"api.", API},
	{"console.", Dashboard},
	{"www.", Marketing},
}

var localHosts = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"::1":       {},
	"0.0.0.0":   {},
}

// DefaultLocalPorts maps local development ports to domains, one port per
// locally running product.
func DefaultLocalPorts() map[int]Domain {
	return map[int]Domain{
		3000: Dashboard,
		3001: Shop,
		3002: Showcase,
		3003: Marketing,
		3004: Booking,
		3005: API,
	}
}

// Resolver maps a host and port to a Domain. The zero value has no local
// port table; use NewResolver.
type Resolver struct {
	localPorts map[int]Domain
}

// NewResolver builds a resolver from a port table. A nil table uses
// DefaultLocalPorts. The table is copied.
func NewResolver(localPorts map[int]Domain) *Resolver {
	if localPorts == nil {
		localPorts = DefaultLocalPorts()
	}
	ports := make(map[int]Domain, len(localPorts))
	for p, d := range localPorts {
		ports[p] = d
	}
	return &Resolver{localPorts: ports}
}

// ParseLocalPorts parses "3001:shop,3002:showcase" into a port table layered
// over the defaults. An empty string returns the defaults.
func ParseLocalPorts(raw string) (map[int]Domain, error) {
	ports := DefaultLocalPorts()
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		portStr, domainStr, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("local port mapping %q: want port:domain", pair)
		}
		port, err := strconv.Atoi(strings.TrimSpace(portStr))
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("local port mapping %q: invalid port", pair)
		}
		d, err := ParseDomain(domainStr)
		if err != nil {
			return nil, fmt.Errorf("local port mapping %q: %w", pair, err)
		}
		ports[port] = d
	}
	return ports, nil
}

// LocalPorts returns the configured port table as sorted "port:domain" pairs.
func (r *Resolver) LocalPorts() []string {
	ports := make([]int, 0, len(r.localPorts))
	for p := range r.localPorts {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		out = append(out, fmt.Sprintf("%d:%s", p, r.localPorts[p]))
	}
	return out
}

// Resolve classifies hostname and port. An empty port means none was given;
// a port embedded in hostname is used in that case. Precedence: subdomain
// prefix, then local development port, then Dashboard. Resolve never fails.
func (r *Resolver) Resolve(hostname, port string) Domain {
	host, embeddedPort := normalizeHost(hostname)
	if port == "" {
		port = embeddedPort
	}

	for _, s := range subdomainPrefixes {
		if strings.HasPrefix(host, s.prefix) && len(host) > len(s.prefix) {
			return s.domain
		}
	}

	if _, ok := localHosts[host]; ok {
		if p, err := strconv.Atoi(strings.TrimSpace(port)); err == nil {
			if d, ok := r.localPorts[p]; ok {
				return d
			}
		}
	}

	return Dashboard
}

var defaultResolver = NewResolver(nil)

// Resolve classifies hostname and port using the default port table.
func Resolve(hostname, port string) Domain {
	return defaultResolver.Resolve(hostname, port)
}

// normalizeHost lower-cases host, strips a trailing dot and IPv6 brackets,
// and splits off an embedded port.
func normalizeHost(raw string) (host, port string) {
	host = strings.ToLower(strings.TrimSpace(raw))
	if h, p, err := net.SplitHostPort(host); err == nil {
		host, port = h, p
	} else {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	host = strings.TrimSuffix(host, ".")
	return host, port
}

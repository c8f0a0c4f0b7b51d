// Package origin validates browser Origin headers against the coordinator's
// allow list.
package origin

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// NormalizeHeader validates and normalizes a browser Origin header.
//
// It returns the normalized origin (scheme://host[:port], default ports
// dropped) and the host[:port] portion for same-host comparisons. The special
// Origin value "null" is returned as-is.
func NormalizeHeader(originHeader string) (normalizedOrigin string, host string, ok bool) {
	trimmed := strings.TrimSpace(originHeader)
	if trimmed == "" {
		return "", "", false
	}
	if trimmed == "null" {
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = canonicalHost(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// Policy decides which browser origins may open gateway connections and call
// the HTTP API.
type Policy struct {
	allowed []string
	public  string
}

// NewPolicy returns a policy for the given normalized origins. Entries may be
// "*". An empty list allows same-host requests only.
func NewPolicy(allowed []string) Policy {
	return Policy{allowed: append([]string(nil), allowed...)}
}

// WithPublicOrigin returns a copy of p that, in same-host mode, also accepts
// publicOrigin. It lets browsers through when a reverse proxy rewrites the
// Host header. An explicit allow list ignores it.
func (p Policy) WithPublicOrigin(publicOrigin string) Policy {
	p.allowed = append([]string(nil), p.allowed...)
	p.public = publicOrigin
	return p
}

// Wildcard reports whether any origin is allowed.
func (p Policy) Wildcard() bool {
	for _, a := range p.allowed {
		if a == "*" {
			return true
		}
	}
	return false
}

// Allows reports whether a normalized origin may access requestHost.
//
// Same-host matching ignores the scheme because the coordinator may sit behind
// a TLS-terminating proxy and see plain HTTP.
func (p Policy) Allows(normalizedOrigin, originHost, requestHost string) bool {
	if len(p.allowed) > 0 {
		for _, allowed := range p.allowed {
			if allowed == "*" || allowed == normalizedOrigin {
				return true
			}
		}
		return false
	}

	if p.public != "" && normalizedOrigin == p.public {
		return true
	}

	var scheme string
	switch {
	case strings.HasPrefix(normalizedOrigin, "http://"):
		scheme = "http"
	case strings.HasPrefix(normalizedOrigin, "https://"):
		scheme = "https"
	default:
		return false
	}

	host, ok := canonicalHost(strings.TrimSpace(requestHost), scheme)
	return ok && originHost == host
}

// CheckRequest applies the policy to r. Requests without an Origin header
// (non-browser clients) are allowed and return an empty origin. A request with
// more than one Origin header is rejected.
func (p Policy) CheckRequest(r *http.Request) (normalizedOrigin string, ok bool) {
	values := r.Header.Values("Origin")
	switch len(values) {
	case 0:
		return "", true
	case 1:
	default:
		return "", false
	}
	if strings.TrimSpace(values[0]) == "" {
		return "", true
	}
	normalized, host, ok := NormalizeHeader(values[0])
	if !ok || !p.Allows(normalized, host, r.Host) {
		return "", false
	}
	return normalized, true
}

// canonicalHost lower-cases an authority, validates its port and drops the
// scheme's default port. IPv6 literals keep their brackets.
func canonicalHost(authority, scheme string) (string, bool) {
	rawHostname, rawPort, ok := splitHostPort(authority)
	if !ok {
		return "", false
	}

	hostname := strings.ToLower(rawHostname)
	if hostname == "" {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host = host + ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

// splitHostPort splits an authority host[:port] string. The hostname is
// returned without brackets for IPv6 literals and the port is not validated.
func splitHostPort(rawHost string) (hostname, port string, ok bool) {
	if rawHost == "" {
		return "", "", false
	}

	if strings.HasPrefix(rawHost, "[") {
		end := strings.IndexByte(rawHost, ']')
		if end < 0 {
			return "", "", false
		}
		hostname = rawHost[1:end]
		rest := rawHost[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		if !strings.HasPrefix(rest, ":") || len(rest) == 1 {
			return "", "", false
		}
		return hostname, rest[1:], true
	}

	switch strings.Count(rawHost, ":") {
	case 0:
		return rawHost, "", true
	case 1:
		parts := strings.SplitN(rawHost, ":", 2)
		if parts[0] == "" || parts[1] == "" {
			return "", "", false
		}
		return parts[0], parts[1], true
	default:
		// Unbracketed IPv6 literals are not valid in the authority component.
		return "", "", false
	}
}

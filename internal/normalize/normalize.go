// Package normalize canonicalizes the host names that partition mentions and
// the source and target URLs stored with them.
package normalize

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// ErrEmptyHost is returned for a blank host.
var ErrEmptyHost = errors.New("empty host")

// Host returns the canonical form of a domain or IP literal: IDNA lookup
// mapping (lower case, punycode) for names, the parsed form for addresses.
// A single trailing dot is dropped.
func Host(host string) (string, error) {
	h := strings.TrimSuffix(strings.TrimSpace(host), ".")
	if h == "" {
		return "", ErrEmptyHost
	}

	if addr, err := netip.ParseAddr(strings.Trim(h, "[]")); err == nil {
		return addr.String(), nil
	}

	ascii, err := idna.Lookup.ToASCII(h)
	if err != nil {
		return "", fmt.Errorf("normalize host %q: %w", host, err)
	}
	return ascii, nil
}

// Hosts normalizes every entry, failing on the first invalid one.
func Hosts(hosts []string) ([]string, error) {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		n, err := Host(h)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// WebURL parses raw as an absolute http or https URL with a host and returns
// its canonical form: lower-case scheme, host normalized with Host, default
// port removed, "/" for an empty path and no fragment. Two spellings of the
// same resource yield equal String() values.
func WebURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("missing host")
	}

	host, err := Host(u.Hostname())
	if err != nil {
		return nil, err
	}
	port := u.Port()
	if port == defaultPorts[u.Scheme] {
		port = ""
	}
	switch {
	case port != "":
		u.Host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		u.Host = "[" + host + "]"
	default:
		u.Host = host
	}

	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

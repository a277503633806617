package support

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	ProxySchemeHTTP   = "http"
	ProxySchemeHTTPS  = "https"
	ProxySchemeSOCKS4 = "socks4"
	ProxySchemeSOCKS5 = "socks5"
)

var ErrInvalidProxyAddress = errors.New("invalid proxy address")

var proxySchemeAliases = map[string]string{
	ProxySchemeHTTP:   ProxySchemeHTTP,
	ProxySchemeHTTPS:  ProxySchemeHTTPS,
	ProxySchemeSOCKS4: ProxySchemeSOCKS4,
	"socks4a":         ProxySchemeSOCKS4,
	ProxySchemeSOCKS5: ProxySchemeSOCKS5,
	"socks5h":         ProxySchemeSOCKS5,
	"socks":           ProxySchemeSOCKS5,
}

// NormalizeProxyScheme maps scheme aliases onto the four supported schemes.
// Anything unknown is treated as a plain HTTP proxy.
func NormalizeProxyScheme(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if scheme, ok := proxySchemeAliases[value]; ok {
		return scheme
	}
	return ProxySchemeHTTP
}

// ParseProxyAddress turns "host:port", "user:pass@host:port" or a full
// "scheme://..." string into a URL with a normalised scheme.
func ParseProxyAddress(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidProxyAddress)
	}

	scheme := ProxySchemeHTTP
	if idx := strings.Index(raw, "://"); idx >= 0 {
		candidate := strings.ToLower(raw[:idx])
		if _, ok := proxySchemeAliases[candidate]; !ok {
			return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxyAddress, candidate)
		}
		scheme = NormalizeProxyScheme(candidate)
		raw = raw[idx+3:]
	}

	parsed, err := url.Parse(scheme + "://" + raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxyAddress, err)
	}
	if parsed.Hostname() == "" || parsed.Port() == "" {
		return nil, fmt.Errorf("%w: %q needs host and port", ErrInvalidProxyAddress, raw)
	}
	parsed.Path = ""
	return parsed, nil
}

// ProxyHost returns the bare host of a proxy address, or "" when it does not
// parse.
func ProxyHost(raw string) string {
	parsed, err := ParseProxyAddress(raw)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// ProxyIP returns the proxy host as an IP when it is a literal address.
func ProxyIP(raw string) net.IP {
	return net.ParseIP(ProxyHost(raw))
}

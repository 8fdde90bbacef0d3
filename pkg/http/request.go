package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig controls which peers may set forwarding headers.
type IPConfig struct {
	TrustedProxies []string // CIDR ranges

	prefixes []netip.Prefix
	parsed   bool
}

// NewIPConfig parses the trusted proxy ranges once. Invalid entries are
// skipped and returned so the caller can log them.
func NewIPConfig(trustedProxies []string) (*IPConfig, []string) {
	cfg := &IPConfig{TrustedProxies: trustedProxies, parsed: true}
	var invalid []string
	for _, cidr := range trustedProxies {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			invalid = append(invalid, cidr)
			continue
		}
		cfg.prefixes = append(cfg.prefixes, p.Masked())
	}
	return cfg, invalid
}

func (c *IPConfig) trusts(addr netip.Addr) bool {
	prefixes := c.prefixes
	if !c.parsed {
		// Literal IPConfig values are parsed on each call.
		prefixes = nil
		for _, cidr := range c.TrustedProxies {
			if p, err := netip.ParsePrefix(strings.TrimSpace(cidr)); err == nil {
				prefixes = append(prefixes, p)
			}
		}
	}
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the client address for r. X-Forwarded-For and
// X-Real-IP are honoured only when the direct peer is a trusted proxy;
// otherwise a client could spoof its way around per-IP rate limits.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remote := remoteHost(r)

	peer, err := netip.ParseAddr(remote)
	if err != nil || config == nil || !config.trusts(peer.Unmap()) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, candidate := range strings.Split(xff, ",") {
			candidate = strings.TrimSpace(candidate)
			if _, err := netip.ParseAddr(candidate); err == nil {
				return candidate
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return remote
}

func remoteHost(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

package utils

import (
	"net/netip"
	"net/url"
	"strings"
)

var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// OriginPolicy decides which browser origins may call the API.
type OriginPolicy struct {
	any   bool
	exact map[string]struct{}
}

// NewOriginPolicy builds a policy from configured origins. "*" allows every
// origin. With nothing configured only local and private-network origins are
// allowed, which suits a front end served from the same LAN.
func NewOriginPolicy(origins []string) OriginPolicy {
	p := OriginPolicy{exact: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			p.any = true
		default:
			p.exact[strings.ToLower(o)] = struct{}{}
		}
	}
	return p
}

func (p OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if p.any {
		return true
	}
	if len(p.exact) > 0 {
		_, ok := p.exact[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
	return IsAllowedOrigin(origin)
}

// IsAllowedOrigin reports whether origin is localhost, a private or
// link-local IP, a .local name or a single-label LAN hostname.
func IsAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	hostname := parsed.Hostname()
	switch {
	case hostname == "localhost":
		return true
	case strings.HasSuffix(hostname, ".local"):
		return true
	case !strings.Contains(hostname, ".") && !strings.Contains(hostname, ":"):
		return true
	}
	addr, err := netip.ParseAddr(hostname)
	if err != nil {
		return false
	}
	return isPrivateAddr(addr.Unmap())
}

func isPrivateAddr(addr netip.Addr) bool {
	for _, prefix := range privatePrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

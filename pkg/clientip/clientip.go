// Package clientip resolves the address used to key per-client limits.
package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// RealClientIP returns the IP of the direct peer. Forwarding headers are
// ignored because callers control them; IPv4-mapped IPv6 addresses are
// reported in their IPv4 form so one client maps to one key.
func RealClientIP(r *http.Request) string {
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().Unmap().String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return strings.TrimSpace(host)
}

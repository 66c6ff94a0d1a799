package common

import (
	"net"
	"net/http"
	"strings"
)

// LoopbackIP is reported when no client address can be determined.
const LoopbackIP = "127.0.0.1"

// ClientIP resolves the originating client address: the first X-Forwarded-For
// entry, then the transport peer address, then LoopbackIP. It never fails;
// the address is telemetry for the gateway, not a security control.
func ClientIP(r *http.Request) string {
	if r == nil {
		return LoopbackIP
	}
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if candidate := strings.TrimSpace(first); candidate != "" {
			return candidate
		}
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	if remote != "" {
		return remote
	}
	return LoopbackIP
}

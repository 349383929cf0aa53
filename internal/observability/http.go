package observability

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Request headers carried into event headers and audit entries.
const (
	HeaderRequestID = "X-Request-Id"
	HeaderDeviceID  = "X-Device-Id"
)

func DeviceIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderDeviceID))
}

// RequestIDFromRequest returns the caller's request id, or a fresh one when
// the header is absent.
func RequestIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderRequestID)); id != "" {
		return id
	}
	return uuid.NewString()
}

// IPFromRequest prefers proxy headers over the peer address.
func IPFromRequest(r *http.Request) string {
	for _, h := range []string{"X-Forwarded-For", "X-Real-Ip"} {
		first, _, _ := strings.Cut(r.Header.Get(h), ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

package opshttp

import (
	"net"
	"net/http"

	"github.com/keithlinneman/pmaas/internal/log"
)

// requireNonPublicNetwork rejects callers from public addresses and any
// request carrying X-Forwarded-For. The ops port is only for monitoring
// inside the network; a forwarded request means a load balancer is
// pointed at it by mistake.
func requireNonPublicNetwork(l log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := rejectReason(r); reason != "" {
			l.Warn(r.Context(), "ops request rejected",
				"reason", reason,
				"network.peer.address", r.RemoteAddr,
				"url.path", r.URL.Path,
			)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rejectReason(r *http.Request) string {
	if r.Header.Get("X-Forwarded-For") != "" {
		return "forwarded"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "bad remote address"
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return "bad remote address"
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
		return ""
	}
	return "public address"
}

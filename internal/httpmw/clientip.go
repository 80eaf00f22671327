package httpmw

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

// unknownClient keys requests whose peer address cannot be parsed. They all
// share one quota bucket.
const unknownClient = "0.0.0.0"

// ClientIPOptions controls how far X-Forwarded-For is trusted.
type ClientIPOptions struct {
	// TrustedHops counts the reverse proxies in front of the server. 0 ignores
	// X-Forwarded-For, 1 takes its last entry (one load balancer), 2 the one
	// before it (CDN then load balancer).
	TrustedHops int
}

// ClientIP resolves the client key with no trusted proxies.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions stores the resolved client address in the request
// context. The quota limiter, flood guard and request logger all read it
// back with ClientIPFromContext.
func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := resolveClientAddr(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), addr)))
		})
	}
}

// resolveClientAddr returns the peer host unless the peer is a private
// address and trustedHops > 0, in which case the matching X-Forwarded-For
// entry wins. Whenever forwarded headers are not trusted they are removed so
// later handlers cannot read them.
func resolveClientAddr(r *http.Request, trustedHops int) string {
	if r.RemoteAddr == "" {
		return unknownClient
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil {
		return unknownClient
	}

	if !peer.IsPrivate() || trustedHops <= 0 {
		dropForwarded(r.Header)
		return host
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return host
	}
	hops := strings.Split(xff, ",")
	i := len(hops) - trustedHops
	if i < 0 {
		// shorter chain than the configured proxies
		dropForwarded(r.Header)
		return host
	}
	if c := strings.TrimSpace(hops[i]); net.ParseIP(c) != nil {
		return c
	}
	return host
}

func dropForwarded(h http.Header) {
	h.Del("X-Forwarded-For")
	h.Del("X-Forwarded-Proto")
}

// ClientIPFromContext returns the address stored by ClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// WithClientIP stores ip in ctx. An empty ip leaves ctx unchanged.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// Package httprate limits requests per client with a fixed window.
package httprate

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ccxcon/ccxcon/internal/ezhttp"
)

// KeyFunc returns the identity a request is counted against.
type KeyFunc func(r *http.Request) string

// KeyByIP counts requests per remote address. IPv6 addresses are grouped by their /64 prefix.
func KeyByIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return canonicalizeIP(ip)
}

// NewRateLimiter starts a limiter whose expired windows are dropped until ctx is done.
func NewRateLimiter(ctx context.Context, requestLimit int, windowLength time.Duration, keyFunc KeyFunc, onRequestLimit http.HandlerFunc) *RateLimiter {
	c := newCounter(requestLimit, windowLength)
	go c.cleanupLoop(ctx)

	if keyFunc == nil {
		keyFunc = KeyByIP
	}
	return &RateLimiter{
		requestLimit:   requestLimit,
		counter:        c,
		keyFunc:        keyFunc,
		onRequestLimit: onRequestLimit,
	}
}

type RateLimiter struct {
	requestLimit   int
	counter        *counter
	keyFunc        KeyFunc
	onRequestLimit http.HandlerFunc
}

func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, remaining, reset := l.counter.Try(l.keyFunc(r))
		w.Header().Set(ezhttp.HeaderRateLimitLimit, strconv.Itoa(l.requestLimit))
		w.Header().Set(ezhttp.HeaderRateLimitRemaining, strconv.Itoa(remaining))
		w.Header().Set(ezhttp.HeaderRateLimitReset, strconv.FormatInt(reset.Unix(), 10))

		if !ok {
			w.Header().Set(ezhttp.HeaderRetryAfter, strconv.FormatInt(int64(math.Ceil(reset.Sub(l.counter.now()).Seconds())), 10))
			l.onRequestLimit(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// canonicalizeIP returns ip unchanged for IPv4 and the /64 prefix for IPv6.
func canonicalizeIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() != nil {
		return ip
	}
	return parsed.Mask(net.CIDRMask(64, 128)).String()
}

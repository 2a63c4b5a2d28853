// Package profile builds randomized, browser-like request headers so harvest
// traffic is less trivially fingerprinted. It is best-effort only.
package profile

import (
	"math/rand/v2"
	"net/http"
	"strings"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:129.0) Gecko/20100101 Firefox/129.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.6; rv:128.0) Gecko/20100101 Firefox/128.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36 Edg/128.0.0.0",
}

var fixedHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Cache-Control":             "max-age=0",
}

// Profile hands out request identities drawn from a user-agent pool.
type Profile struct {
	userAgents []string
	pick       func(n int) int
}

// New returns a Profile using the given pool, or the built-in pool when empty.
func New(userAgents []string) *Profile {
	pool := make([]string, 0, len(userAgents))
	for _, ua := range userAgents {
		if ua = strings.TrimSpace(ua); ua != "" {
			pool = append(pool, ua)
		}
	}
	if len(pool) == 0 {
		pool = append(pool, defaultUserAgents...)
	}
	return &Profile{userAgents: pool, pick: rand.IntN}
}

// Headers returns a fresh header set with a randomly chosen user agent.
func (p *Profile) Headers() map[string]string {
	out := make(map[string]string, len(fixedHeaders)+1)
	for k, v := range fixedHeaders {
		out[k] = v
	}
	out["User-Agent"] = p.UserAgent()
	return out
}

// HTTPHeader returns Headers as an http.Header.
func (p *Profile) HTTPHeader() http.Header {
	h := make(http.Header)
	for k, v := range p.Headers() {
		h.Set(k, v)
	}
	return h
}

// UserAgent returns one user agent from the pool.
func (p *Profile) UserAgent() string {
	return p.userAgents[p.pick(len(p.userAgents))]
}

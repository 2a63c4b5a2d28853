package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type countingPacer struct {
	calls atomic.Int32
}

func (p *countingPacer) Wait(context.Context, string) {
	p.calls.Add(1)
}

func TestNewWithoutRespectAllowsEverything(t *testing.T) {
	t.Parallel()

	policy := New(false, "agent", nil, zap.NewNop())
	assert.IsType(t, AllowAll{}, policy)
	assert.True(t, policy.Allowed(context.Background(), "https://example.com/private"))
}

func TestEnforcerHonorsDisallow(t *testing.T) {
	t.Parallel()

	var robotsHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits.Add(1)
			fmt.Fprintln(w, "User-agent: *\nDisallow: /blocked")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pacer := &countingPacer{}
	enforcer := NewEnforcer("harvest-agent", pacer, zap.NewNop())
	ctx := context.Background()

	assert.True(t, enforcer.Allowed(ctx, srv.URL+"/allowed"))
	assert.False(t, enforcer.Allowed(ctx, srv.URL+"/blocked/page"))
	assert.Equal(t, int32(1), robotsHits.Load(), "robots.txt should be cached per host")
	assert.Equal(t, int32(1), pacer.calls.Load())
}

func TestEnforcerAllowsWhenRobotsUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	enforcer := NewEnforcer("agent", nil, nil)
	assert.True(t, enforcer.Allowed(context.Background(), url+"/anything"))
}

func TestEnforcerRejectsUnparseableURL(t *testing.T) {
	t.Parallel()

	enforcer := NewEnforcer("agent", nil, nil)
	assert.False(t, enforcer.Allowed(context.Background(), "::not a url"))
}

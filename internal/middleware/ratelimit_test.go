package middleware

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func TestLimiterStore_AllowAndCleanup(t *testing.T) {
	// allow 5 events immediately then the 6th should be rejected
	s := NewLimiterStore(5, 5, time.Hour)
	defer s.Stop()

	key := "10.0.0.1"
	for i := 0; i < 5; i++ {
		if !s.Allow(key) {
			t.Fatalf("expected allow at iteration %d", i)
		}
	}
	if s.Allow(key) {
		t.Fatalf("expected limiter to block after burst consumed")
	}
	if !s.Allow("10.0.0.2") {
		t.Fatalf("other keys must have their own bucket")
	}

	s.evictIdle(time.Now().Add(time.Second))
	s.mu.Lock()
	n := len(s.clients)
	s.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected idle entries evicted, %d left", n)
	}
	// a fresh bucket after eviction
	if !s.Allow(key) {
		t.Fatalf("expected allow after eviction")
	}
	s.Stop() // idempotent with the deferred Stop
}

func TestRateLimitUnaryInterceptor(t *testing.T) {
	s := NewLimiterStore(1, 1, time.Hour)
	defer s.Stop()

	icpt := RateLimitUnaryInterceptor(s, map[string]bool{"/svc/Limited": true})
	handler := func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil }

	addr := &net.TCPAddr{IP: net.ParseIP("192.0.2.7"), Port: 4000}
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: addr})

	if _, err := icpt(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Limited"}, handler); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}

	// same host, new source port: same bucket
	addr2 := &net.TCPAddr{IP: net.ParseIP("192.0.2.7"), Port: 4001}
	ctx2 := peer.NewContext(context.Background(), &peer.Peer{Addr: addr2})
	_, err := icpt(ctx2, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Limited"}, handler)
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", err)
	}

	// unlisted methods are never limited
	for i := 0; i < 3; i++ {
		if _, err := icpt(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Open"}, handler); err != nil {
			t.Fatalf("unlimited method rejected: %v", err)
		}
	}
}

func TestGinRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewLimiterStore(2, 2, time.Hour)
	defer s.Stop()

	r := gin.New()
	r.POST("/authenticate", GinRateLimit(s), func(c *gin.Context) { c.Status(http.StatusOK) })

	got := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/authenticate", nil)
		req.RemoteAddr = "198.51.100.4:5555"
		r.ServeHTTP(w, req)
		got = append(got, w.Code)
	}
	if got[0] != http.StatusOK || got[1] != http.StatusOK || got[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", got)
	}
}

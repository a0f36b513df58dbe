package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/parix-analytics/parix-go/utils"
)

const timeoutResponseBody = `{"error":"Request timeout - operation took too long"}`

// TimeoutMiddleware bounds each request with http.TimeoutHandler, which
// seals the ResponseWriter once the deadline fires: a handler still running
// past the timeout gets ErrHandlerTimeout on every later write instead of
// racing the timeout response. The handler observes the deadline through
// its request context.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
				utils.GetLogger().Warn("Request timeout",
					utils.String("path", r.URL.Path),
					utils.String("method", r.Method),
					utils.String("timeout", timeout.String()),
					utils.Component("middleware"))
			}
		})
		return http.TimeoutHandler(inner, timeout, timeoutResponseBody)
	}
}

// APITimeoutMiddleware applies different timeouts for different API routes
func APITimeoutMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			timeout := 30 * time.Second

			// Reloads rerun the whole pipeline; narratives block on the LLM.
			if r.Method == "POST" &&
				(r.URL.Path == "/api/v1/cohort/reload" ||
					strings.HasSuffix(r.URL.Path, "/narrative")) {
				timeout = 120 * time.Second
			}

			TimeoutMiddleware(timeout)(next).ServeHTTP(w, r)
		})
	}
}

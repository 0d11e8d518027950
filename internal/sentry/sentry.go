package sentry

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

// ignoredErrors contains error messages that should be logged but not sent to Sentry.
// On a Wi-Fi relay these are ordinary link flaps, not bugs.
var ignoredErrors = []string{
	"connection reset by peer",         // Broker dropped us (or the AP did)
	"EOF",                              // Peer closed without a reply
	"peer closed connection",           // Zero-byte read from the broker
	"broken pipe",                      // Write after the broker went away
	"use of closed network connection", // Operation on a socket we already closed
	"connection refused",               // Broker restarting
	"no such host",                     // DNS unavailable while the uplink settles
	"network is unreachable",           // Interface up without a route yet
}

// shouldIgnore checks if an error should be filtered out from Sentry.
func shouldIgnore(err error) bool {
	if err == nil {
		return true
	}

	type timeoutError interface{ Timeout() bool }
	if te, ok := err.(timeoutError); ok && te.Timeout() {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return true
	}
	for _, ignored := range ignoredErrors {
		if strings.Contains(errStr, ignored) {
			return true
		}
	}
	return false
}

// Init configures the global Sentry client. An empty dsn leaves reporting disabled.
func Init(dsn, release string) error {
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		AttachStacktrace: true,
	})
}

// Flush waits up to timeout for buffered events to be delivered.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// Middleware returns the gin middleware that attaches a hub to each request.
func Middleware() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{Repanic: true})
}

// Report sends err to Sentry without logging it. It matches the session
// failure hook so the caller's own logging is not duplicated.
func Report(err error, message string) {
	if shouldIgnore(err) {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetExtra("message", message)
		sentry.CaptureException(err)
	})
}

// Reporter returns a Report variant tagged with component.
func Reporter(component string) func(err error, message string) {
	return func(err error, message string) {
		if shouldIgnore(err) {
			return
		}
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("component", component)
			scope.SetExtra("message", message)
			sentry.CaptureException(err)
		})
	}
}

// CaptureError logs an error locally and reports it to Sentry.
// Use this for errors outside of HTTP request context (startup, background tasks).
func CaptureError(err error, message string) {
	log.Printf("%s: %v", message, err)
	Report(err, message)
}

// CaptureErrorWithContext logs an error and reports it to Sentry with HTTP request context.
func CaptureErrorWithContext(c *gin.Context, err error, message string) {
	log.Printf("%s: %v", message, err)
	if shouldIgnore(err) {
		return
	}
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetExtra("message", message)
			if c.Request != nil {
				scope.SetTag("http.method", c.Request.Method)
				scope.SetTag("http.path", c.Request.URL.Path)
				scope.SetExtra("http.remote_ip", c.ClientIP())
			}
			hub.CaptureException(err)
		})
		return
	}
	Report(err, message)
}

// CaptureErrorf logs and reports an error with a formatted message.
func CaptureErrorf(err error, format string, args ...interface{}) {
	CaptureError(err, fmt.Sprintf(format, args...))
}

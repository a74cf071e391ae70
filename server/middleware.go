// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "requestId"
)

// requestID propagates the caller's request id or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		ctx.Set(requestIDKey, id)
		ctx.Header(requestIDHeader, id)
		ctx.Next()
	}
}

func requestIDFrom(ctx *gin.Context) string {
	return ctx.GetString(requestIDKey)
}

// securityHeaders sets the hardening headers every response carries.
func securityHeaders(production bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		h := ctx.Writer.Header()
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-DNS-Prefetch-Control", "off")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("X-Permitted-Cross-Domain-Policies", "none")

		if production {
			h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
		}

		ctx.Next()
	}
}

// admission rejects clients over the rate limit before any work is done.
func (s *Server) admission() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		d := s.limiter.Allow(ctx.ClientIP())
		s.metrics.ObserveAdmission(d.Allowed)

		if d.Limit > 0 {
			ctx.Header("RateLimit-Limit", strconv.Itoa(d.Limit))
			ctx.Header("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			ctx.Header("RateLimit-Reset", strconv.Itoa(ceilSeconds(d.Reset)))
		}

		if d.Allowed {
			ctx.Next()

			return
		}

		retryAfter := ceilSeconds(d.RetryAfter)

		s.logger.WarnContext(ctx.Request.Context(), "rate limit exceeded",
			"client", ctx.ClientIP(), "path", ctx.Request.URL.Path, "retry_after", retryAfter)

		ctx.Header("Retry-After", strconv.Itoa(retryAfter))
		ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success":    false,
			"error":      "Rate limit exceeded. Too many requests from your IP address.",
			"message":    "Please wait before making more requests.",
			"retryAfter": retryAfter,
		})
	}
}

func ceilSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

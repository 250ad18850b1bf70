package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"prepmind/internal/storage"
)

const labelKey = "token_label"

func tokenLabel(c *gin.Context) string {
	if v, ok := c.Get(labelKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		ctx := c.Request.Context()
		if s.tokenCache != nil {
			label, found, err := s.tokenCache.Get(ctx, token)
			if err != nil {
				s.logger.Warn().Err(err).Msg("token cache lookup failed")
			} else if found {
				c.Set(labelKey, label)
				c.Next()
				return
			}
		}

		label, err := s.store.LookupToken(ctx, token)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			s.logger.Error().Err(err).Msg("token lookup failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth unavailable"})
			return
		}

		if s.tokenCache != nil {
			if err := s.tokenCache.Set(ctx, token, label); err != nil {
				s.logger.Warn().Err(err).Msg("token cache write failed")
			}
		}
		c.Set(labelKey, label)
		c.Next()
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.rateLimiter == nil {
			c.Next()
			return
		}
		token := bearerToken(c.GetHeader("Authorization"))
		allowed, _, resetAt, err := s.rateLimiter.Allow(c.Request.Context(), token, time.Now())
		if err != nil {
			// redis trouble should not take the API down
			s.logger.Warn().Err(err).Msg("rate limit check failed")
			c.Next()
			return
		}
		if !allowed {
			s.metrics.RateLimitedTotal.Inc()
			c.Header("Retry-After", strconv.FormatInt(int64(time.Until(resetAt).Seconds())+1, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

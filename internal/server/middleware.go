package server

import (
	"crypto/subtle"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/boxoffice/internal/observability/context"
	obslogger "github.com/smallbiznis/boxoffice/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	HeaderOperatorID   = "X-Operator-Id"
	HeaderOperatorRole = "X-Operator-Role"

	contextOperatorIDKey   = "operator_id"
	contextOperatorRoleKey = "operator_role"
)

// OperatorRequired checks the shared admin token and takes the operator
// identity from the headers the upstream gateway sets after login.
func (s *Server) OperatorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(s.cfg.AdminAPIToken)
		if expected == "" {
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		operatorID := strings.TrimSpace(c.GetHeader(HeaderOperatorID))
		role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderOperatorRole)))
		if operatorID == "" || role == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextOperatorIDKey, operatorID)
		c.Set(contextOperatorRoleKey, role)
		ctx := obscontext.WithActor(c.Request.Context(), "operator", operatorID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		operatorID, role := operatorFromContext(c)
		if err := s.authzSvc.Authorize(c.Request.Context(), operatorID, role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func operatorFromContext(c *gin.Context) (string, string) {
	return c.GetString(contextOperatorIDKey), c.GetString(contextOperatorRoleKey)
}

// RateLimit throttles endpoint per client IP.
func (s *Server) RateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res, err := s.limiter.Allow(ctx, endpoint, c.ClientIP())
		if err != nil {
			obslogger.WithContext(ctx, s.log).Warn("rate limit check failed", zap.String("endpoint", endpoint), zap.Error(err))
		}
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if !res.Allowed {
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint)
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/gin-blog/internal/service"
	"github.com/d60-Lab/gin-blog/pkg/logger"
	"github.com/d60-Lab/gin-blog/pkg/response"
)

// TokenCookie 会话 cookie 名
const TokenCookie = "token"

const claimsKey = "claims"

// Auth 校验 token cookie，成功后把 claims 放入上下文；失败统一 401
func Auth(tokens *service.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(TokenCookie)
		claims, err := tokens.Verify(c.Request.Context(), token)
		if err != nil {
			if !service.IsInvalidToken(err) {
				logger.Warn("token verification failed", zap.Error(err))
			}
			response.Unauthorized(c, "invalid token")
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom 取出 Auth 写入的 claims；未经过 Auth 时返回 nil
func ClaimsFrom(c *gin.Context) *service.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*service.Claims)
	return claims
}

package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/utils"
)

const (
	contextSessionID = "sessionID"
	contextToken     = "token"
)

// AuthMiddleware 会话令牌认证中间件
type AuthMiddleware struct {
	tokens *utils.JWTManager
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(tokens *utils.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
	}
}

// RequireSession 需要会话令牌；路由中带 :id 时令牌必须属于该会话
func (m *AuthMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			AbortWithError(c, apperrors.New(apperrors.ErrAuthentication, "缺少认证令牌"))
			return
		}

		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		if id := c.Param("id"); id != "" && id != claims.SessionID {
			AbortWithError(c, apperrors.New(apperrors.ErrAuthorization, "令牌不属于该会话"))
			return
		}

		c.Set(contextSessionID, claims.SessionID)
		c.Set(contextToken, token)

		c.Next()
	}
}

// extractToken 从请求中提取令牌
func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	// 1. Authorization: Bearer <token>
	bearerToken := c.GetHeader("Authorization")
	if bearerToken != "" {
		parts := strings.Split(bearerToken, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}

	// 2. X-Access-Token
	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	// 3. 查询参数（浏览器WebSocket无法设置请求头）
	if token := c.Query("token"); token != "" {
		return token
	}

	return ""
}

// GetSessionID 从上下文获取会话ID
func GetSessionID(c *gin.Context) (string, bool) {
	if sessionID, exists := c.Get(contextSessionID); exists {
		if id, ok := sessionID.(string); ok {
			return id, true
		}
	}
	return "", false
}

// IsAuthenticated 检查是否已认证
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(contextSessionID)
	return exists
}

package middleware

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"osaccount/internal/service"
	"osaccount/pkg/api"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// BearerSchema Bearer认证方案
	BearerSchema = "Bearer "
	// ContextKeyCaller 上下文中调用方信息的键
	ContextKeyCaller = "caller"
	// CookieAccessToken Cookie中访问令牌的键
	CookieAccessToken = "access_token"
	// QueryAccessToken WebSocket握手时URL中访问令牌的参数名
	QueryAccessToken = "access_token"
	// callerIssuer 调用方令牌签发者
	callerIssuer = "osaccount-caller"
)

var errMissingToken = errors.New("missing token")

// CallerClaims 调用方令牌声明
type CallerClaims struct {
	UID         int      `json:"uid"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// IssueCallerToken 签发调用方令牌，供运维工具和测试使用
func IssueCallerToken(secret []byte, uid int, permissions []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := CallerClaims{
		UID:         uid,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    callerIssuer,
			Subject:   strconv.Itoa(uid),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// AuthMiddleware 认证中间件，把调用方令牌转换为服务层的Caller
type AuthMiddleware struct {
	secret  []byte
	enabled bool
}

// NewAuthMiddleware 创建认证中间件实例
func NewAuthMiddleware(secret []byte, enabled bool) *AuthMiddleware {
	return &AuthMiddleware{
		secret:  secret,
		enabled: enabled,
	}
}

// HandleAuth 处理认证
func (m *AuthMiddleware) HandleAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 认证被禁用时以系统身份放行
		if !m.enabled {
			setCaller(c, service.SystemCaller())
			c.Next()
			return
		}

		token := extractToken(c)
		if token == "" {
			api.Error(c, http.StatusUnauthorized, "缺少访问令牌", errMissingToken)
			c.Abort()
			return
		}

		claims, err := m.parse(token)
		if err != nil {
			log.Printf("[DEBUG] 调用方令牌校验失败: %v", err)
			api.Error(c, http.StatusUnauthorized, "访问令牌无效", err)
			c.Abort()
			return
		}

		if remaining := time.Until(claims.ExpiresAt.Time); remaining > 0 {
			c.Header("X-Token-Expires-In", remaining.Round(time.Second).String())
		}
		setCaller(c, service.NewCaller(claims.UID, claims.Permissions...))
		c.Next()
	}
}

func (m *AuthMiddleware) parse(token string) (*CallerClaims, error) {
	var claims CallerClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(callerIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid caller token: %w", err)
	}
	if claims.UID < 0 {
		return nil, fmt.Errorf("invalid caller uid %d", claims.UID)
	}
	return &claims, nil
}

// setCaller 同时写入gin上下文和请求的context.Context
func setCaller(c *gin.Context, caller *service.Caller) {
	c.Set(ContextKeyCaller, caller)
	c.Request = c.Request.WithContext(service.WithCaller(c.Request.Context(), caller))
}

// extractToken 依次从Authorization头、Cookie和URL参数中提取令牌
func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" && strings.HasPrefix(auth, BearerSchema) {
		return auth[len(BearerSchema):]
	}
	if cookie, err := c.Cookie(CookieAccessToken); err == nil && cookie != "" {
		return cookie
	}
	return c.Query(QueryAccessToken)
}

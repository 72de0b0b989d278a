package model

import "github.com/golang-jwt/jwt/v5"

// AuthTokenClaims 认证令牌的声明，令牌与账号和会话挑战值绑定
type AuthTokenClaims struct {
	LocalID    int            `json:"local_id"`
	AuthType   AuthType       `json:"auth_type"`
	TrustLevel AuthTrustLevel `json:"trust_level"`
	Challenge  uint64         `json:"challenge,string"`
	jwt.RegisteredClaims
}

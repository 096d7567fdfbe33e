package authinfra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 營運端允許的角色。
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// ErrForbiddenRole token 有效但角色不足。
var ErrForbiddenRole = errors.New("role not allowed")

// Claims 定義營運端 access token 的 payload。
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTIssuer 以 HS256 簽發與驗證營運端 token。
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTIssuer 建立 JWT 簽發器，ttl <= 0 時預設 12 小時。
func NewJWTIssuer(secret string, ttl time.Duration) *JWTIssuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &JWTIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue 產生 access token 與到期時間。
func (j *JWTIssuer) Issue(subject, role string) (string, time.Time, error) {
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, fmt.Errorf("subject required")
	}
	if !allowedRole(role) {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrForbiddenRole, role)
	}
	now := j.now()
	exp := now.Add(j.ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "deal-sniper",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccessToken 驗證簽章、到期時間與角色。
func (j *JWTIssuer) ParseAccessToken(token string) (Claims, error) {
	var claims Claims
	tkn, err := jwt.ParseWithClaims(token, &claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		return Claims{}, err
	}
	if !tkn.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if !allowedRole(claims.Role) {
		return Claims{}, fmt.Errorf("%w: %q", ErrForbiddenRole, claims.Role)
	}
	return claims, nil
}

func allowedRole(role string) bool {
	return role == RoleOperator || role == RoleAdmin
}

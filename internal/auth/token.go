package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken はセッショントークンが不正または期限切れであることを表す。
var ErrInvalidToken = errors.New("invalid session token")

// Claims はセッショントークンのクレーム。
// subにユーザーID、sidにセッションIDを保持する。
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenManager はHS256署名のセッショントークンを発行・検証する。
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

// NewTokenManager はTokenManagerを生成する。
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret), now: time.Now}
}

// Issue はセッションに対応するトークンを発行する。
func (m *TokenManager) Issue(userID, sessionID string, expiresAt time.Time) (string, error) {
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Parse はトークンの署名と有効期限を検証してクレームを返す。
// HMAC以外の署名方式、sub/sidの欠落はErrInvalidTokenとする。
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secret, nil
		},
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/mkovalev/emarket/internal/models"
)

func (t *TokenService) SignAccessToken(userID uint, role string) (string, error) {
	exp := time.Now().Add(t.AccessTTL)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(t.JWTSecret)
}

func (t *TokenService) SignRefreshToken(userID uint, role string) (string, error) {
	exp := time.Now().Add(t.RefreshTTL)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
		"typ":  "refresh",
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(t.RefreshSecret)
}

func (t *TokenService) ValidateRefresh(rawToken string) (jwt.MapClaims, error) {
	tok, err := jwt.Parse(rawToken, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.RefreshSecret, nil
	})
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("cannot parse claims")
	}
	if typ, ok := claims["typ"]; !ok || typ != "refresh" {
		return nil, fmt.Errorf("not a refresh token")
	}

	var stored models.RefreshToken
	if err := t.DB.Where("token = ?", rawToken).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("refresh token not found")
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if stored.Revoked {
		return nil, errors.New("refresh token revoked")
	}
	if time.Now().Unix() > stored.ExpiresAt {
		return nil, errors.New("refresh token expired")
	}

	return claims, nil
}

func (t *TokenService) SaveRefreshToken(token string, userID uint) error {
	rec := models.RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(t.RefreshTTL).Unix(),
		Revoked:   false,
	}
	if err := t.DB.Create(&rec).Error; err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/mkovalev/emarket/internal/handlers"
	"github.com/mkovalev/emarket/internal/models"
)

type TokenService struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

func (t *TokenService) RotateToken(rawToken string) (string, string, error) {
	claims, err := t.ValidateRefresh(rawToken)
	if err != nil {
		return "", "", err
	}

	userID := uint(claims["sub"].(float64))
	role, _ := claims["role"].(string)

	newAccess, err := t.SignAccessToken(userID, role)
	if err != nil {
		return "", "", err
	}
	newRefresh, err := t.SignRefreshToken(userID, role)
	if err != nil {
		return "", "", err
	}

	if err := t.DB.Model(&models.RefreshToken{}).
		Where("token = ?", rawToken).
		Update("revoked", true).Error; err != nil {
		return "", "", fmt.Errorf("db error: %w", err)
	}
	if err := t.SaveRefreshToken(newRefresh, userID); err != nil {
		return "", "", err
	}

	return newAccess, newRefresh, nil
}

func (t *TokenService) RevokeRefresh(token string) error {
	if err := t.DB.Model(&models.RefreshToken{}).
		Where("token = ?", token).
		Update("revoked", true).Error; err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// AutoRefreshMiddleware authenticates a bearer header or access cookie and
// transparently rotates an expired access token from the refresh cookie.
func (t *TokenService) AutoRefreshMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if raw := bearerToken(c); raw != "" {
			token, err := jwt.Parse(raw, t.accessKeyFunc)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}
			setUserContext(c, token.Claims.(jwt.MapClaims))
			return next(c)
		}

		asCookie, err := c.Cookie("accessToken")
		if err == nil {
			token, err := jwt.Parse(asCookie.Value, t.accessKeyFunc)
			if err == nil && token.Valid {
				setUserContext(c, token.Claims.(jwt.MapClaims))
				return next(c)
			}
			if !errors.Is(err, jwt.ErrTokenExpired) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}
		}

		rfCookie, err := c.Cookie("refreshToken")
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
		}
		newAccess, newRefresh, err := t.RotateToken(rfCookie.Value)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "cannot rotate token: "+err.Error())
		}

		c.SetCookie(handlers.CreateCookie("accessToken", newAccess, "/", time.Now().Add(t.AccessTTL)))
		c.SetCookie(handlers.CreateCookie("refreshToken", newRefresh, "/", time.Now().Add(t.RefreshTTL)))

		token, _ := jwt.Parse(newAccess, t.accessKeyFunc)
		setUserContext(c, token.Claims.(jwt.MapClaims))
		return next(c)
	}
}

// AutoRefreshMiddlewareAdmin additionally requires the elevated role claim.
// Insufficient role is a 403, distinct from unauthenticated (401).
func (t *TokenService) AutoRefreshMiddlewareAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return t.AutoRefreshMiddleware(func(c echo.Context) error {
		if role, _ := c.Get("role").(string); role != "admin" {
			return echo.NewHTTPError(http.StatusForbidden, "admin role required")
		}
		return next(c)
	})
}

func (t *TokenService) accessKeyFunc(tok *jwt.Token) (interface{}, error) {
	if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
	}
	return t.JWTSecret, nil
}

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func setUserContext(c echo.Context, claims jwt.MapClaims) {
	if sub, ok := claims["sub"].(float64); ok {
		c.Set("userID", uint(sub))
	}
	if role, ok := claims["role"].(string); ok {
		c.Set("role", role)
	}
}

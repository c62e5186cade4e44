package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func errorResponse(c echo.Context, code int, err error) error {
	return c.JSON(code, Response{
		Status:  "error",
		Message: err.Error(),
	})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func CreateCookie(name string, value string, path string, expTime time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expTime,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// GetClaims resolves the caller's access claims: middleware-populated context
// first, then a bearer header, then the access cookie.
func GetClaims(c echo.Context, jwtSecret []byte) (jwt.MapClaims, error) {
	if id, ok := c.Get("userID").(uint); ok {
		claims := jwt.MapClaims{"sub": float64(id)}
		if role, ok := c.Get("role").(string); ok {
			claims["role"] = role
		}
		return claims, nil
	}

	raw := ""
	if h := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		raw = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	} else if cookie, err := c.Cookie("accessToken"); err == nil {
		raw = cookie.Value
	}
	if raw == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func GetID(c echo.Context, jwtSecret []byte) (uint, error) {
	claims, err := GetClaims(c, jwtSecret)
	if err != nil {
		return 0, err
	}
	sub, ok := claims["sub"].(float64)
	if !ok {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "invalid subject claim")
	}
	return uint(sub), nil
}

func IsAdmin(c echo.Context, jwtSecret []byte) bool {
	claims, err := GetClaims(c, jwtSecret)
	if err != nil {
		return false
	}
	role, _ := claims["role"].(string)
	return role == "admin"
}

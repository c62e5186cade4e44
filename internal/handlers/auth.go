package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/mkovalev/emarket/internal/hash"
	"github.com/mkovalev/emarket/internal/mailer"
	"github.com/mkovalev/emarket/internal/models"
	"github.com/mkovalev/emarket/internal/mykafka"
)

const resetTokenTTL = 30 * time.Minute

type AuthHandler struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Producer      *mykafka.Producer
	Mailer        mailer.Mailer
	BaseURL       string
}

func (h *AuthHandler) publish(c echo.Context, key string, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "user_events", key, event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Password  string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if req.FirstName == "" || req.LastName == "" || req.Email == "" || req.Password == "" {
		return errorResponse(c, http.StatusBadRequest,
			errors.New("first_name, last_name, email and password are required"))
	}

	var existing models.User
	if err := h.DB.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return errorResponse(c, http.StatusConflict, errors.New("user already exists"))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}
	user := models.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: pwHash,
		Role:         "user",
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	h.publish(c, fmt.Sprint(user.ID), map[string]any{
		"type":   "user_registered",
		"userID": user.ID,
		"email":  user.Email,
	})

	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	var user models.User
	if err := h.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	accessExp := time.Now().Add(h.AccessTTL)
	accessClaims := jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"exp":  accessExp.Unix(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(h.JWTSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create access token")
	}

	refreshExp := time.Now().Add(h.RefreshTTL)
	refreshClaims := jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"exp":  refreshExp.Unix(),
		"typ":  "refresh",
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(h.RefreshSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create refresh token")
	}

	refreshModel := models.RefreshToken{
		Token:     refreshToken,
		UserID:    user.ID,
		ExpiresAt: refreshExp.Unix(),
		Revoked:   false,
	}
	if err := h.DB.Create(&refreshModel).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not persist refresh token")
	}

	c.SetCookie(CreateCookie("accessToken", accessToken, "/", accessExp))
	c.SetCookie(CreateCookie("refreshToken", refreshToken, "/", refreshExp))

	h.publish(c, fmt.Sprint(user.ID), map[string]any{
		"type":   "user_logged_in",
		"userID": user.ID,
		"email":  user.Email,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"is_admin":      user.Role == "admin",
	})
}

func (h *AuthHandler) LogOut(c echo.Context) error {
	refreshCookie, err := c.Cookie("refreshToken")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, errors.New("refresh token missing"))
	}

	result := h.DB.Model(&models.RefreshToken{}).
		Where("token = ?", refreshCookie.Value).
		Update("revoked", true)
	if result.Error != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	expired := time.Now().Add(-1 * time.Hour)
	c.SetCookie(CreateCookie("accessToken", "", "/", expired))
	c.SetCookie(CreateCookie("refreshToken", "", "/", expired))
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Email     *string `json:"email"`
		Password  *string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, errors.New("user not found"))
	}

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Password != nil && *req.Password != "" {
		pwHash, err := hash.HashPassword(*req.Password)
		if err != nil {
			return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
		}
		user.PasswordHash = pwHash
	}

	if err := h.DB.Save(&user).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return errorResponse(c, http.StatusBadRequest, errors.New("email is required"))
	}

	var user models.User
	if err := h.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, errors.New("user not found"))
	}

	token := uuid.NewString()
	expiry := time.Now().Add(resetTokenTTL)
	user.ResetPasswordToken = token
	user.ResetPasswordExpiry = &expiry
	if err := h.DB.Save(&user).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	link := fmt.Sprintf("%s/api/account/reset_password/%s", h.BaseURL, token)
	body := "Your password reset link is: " + link
	if h.Mailer != nil {
		if err := h.Mailer.Send(user.Email, "Password reset", body); err != nil {
			c.Logger().Errorf("reset mail error: %v", err)
			return errorResponse(c, http.StatusInternalServerError, errors.New("could not send reset mail"))
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": fmt.Sprintf("Email for password reset is sent to %s", user.Email),
	})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	token := c.Param("token")

	var req struct {
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if req.Password == "" || req.Password != req.ConfirmPassword {
		return errorResponse(c, http.StatusBadRequest, errors.New("passwords are not matching"))
	}

	var user models.User
	if err := h.DB.Where("reset_password_token = ?", token).First(&user).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, errors.New("invalid reset token"))
	}
	if user.ResetPasswordExpiry == nil || user.ResetPasswordExpiry.Before(time.Now()) {
		return errorResponse(c, http.StatusBadRequest, errors.New("token is expired"))
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}
	user.PasswordHash = pwHash
	user.ResetPasswordToken = ""
	user.ResetPasswordExpiry = nil
	if err := h.DB.Save(&user).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "password reset successfully"})
}

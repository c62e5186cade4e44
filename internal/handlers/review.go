package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/mkovalev/emarket/internal/models"
)

// CreateOrUpdateReview upserts the caller's review for a product. A user
// holds at most one review per product; posting again replaces it.
func (h *ProductHandler) CreateOrUpdateReview(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	productID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var req struct {
		Rating int    `json:"rating"`
		Review string `json:"review"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if req.Rating < 1 || req.Rating > 5 {
		return errorResponse(c, http.StatusBadRequest, errors.New("rating must be between 1 and 5"))
	}
	if req.Review == "" {
		return errorResponse(c, http.StatusBadRequest, errors.New("review text is required"))
	}

	var prod models.Product
	if err := h.DB.First(&prod, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, fmt.Errorf("product %d not found", productID))
		}
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	var review models.ProductReview
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("product_id = ? AND user_id = ?", prod.ID, userID).First(&review).Error
		switch {
		case err == nil:
			review.Rating = req.Rating
			review.Review = req.Review
			if err := tx.Save(&review).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			review = models.ProductReview{
				ProductID: prod.ID,
				UserID:    userID,
				Rating:    req.Rating,
				Review:    req.Review,
			}
			if err := tx.Create(&review).Error; err != nil {
				return err
			}
		default:
			return err
		}
		return recomputeRating(tx, prod.ID)
	})
	if txErr != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	if err := h.Cache.Invalidate(c.Request().Context(), prod.ID); err != nil {
		c.Logger().Errorf("cache invalidate error: %v", err)
	}
	return c.JSON(http.StatusOK, review)
}

func (h *ProductHandler) DeleteReview(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	productID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var review models.ProductReview
	if err := h.DB.Where("product_id = ? AND user_id = ?", productID, userID).First(&review).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, errors.New("review not found"))
		}
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.ProductReview{}, review.ID).Error; err != nil {
			return err
		}
		return recomputeRating(tx, review.ProductID)
	})
	if txErr != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	if err := h.Cache.Invalidate(c.Request().Context(), review.ProductID); err != nil {
		c.Logger().Errorf("cache invalidate error: %v", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// recomputeRating sets the product rating to the mean of its live reviews,
// or zero when none remain.
func recomputeRating(tx *gorm.DB, productID uint) error {
	var avg float64
	if err := tx.Model(&models.ProductReview{}).
		Where("product_id = ?", productID).
		Select("COALESCE(AVG(rating), 0)").
		Scan(&avg).Error; err != nil {
		return err
	}
	return tx.Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("rating", avg).Error
}

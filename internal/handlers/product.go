package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mkovalev/emarket/internal/cache"
	"github.com/mkovalev/emarket/internal/models"
	"github.com/mkovalev/emarket/internal/mykafka"
	"github.com/mkovalev/emarket/internal/service/search"
	"github.com/mkovalev/emarket/internal/storage"
	"github.com/mkovalev/emarket/internal/util"
)

type ProductHandler struct {
	DB        *gorm.DB
	Producer  *mykafka.Producer
	JWTSecret []byte
	Cache     *cache.ProductCache
	Blobs     storage.BlobStore
	ES        *elasticsearch.Client
	ESIndex   string
	BaseURL   string
}

func (h *ProductHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "product_events", fmt.Sprint(event["productID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

func (h *ProductHandler) index(c echo.Context, p *models.Product) {
	if h.ES == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := search.IndexProduct(ctx, h.ES, h.ESIndex, p); err != nil {
		c.Logger().Errorf("ES index error: %v", err)
	}
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	ctx := c.Request().Context()
	if cached, err := h.Cache.Get(ctx, uint(id)); err != nil {
		c.Logger().Errorf("cache get error: %v", err)
	} else if cached != nil {
		return c.JSON(http.StatusOK, cached)
	}

	var product models.Product
	if err := h.DB.Preload("Images").First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, fmt.Errorf("product %d not found", id))
		}
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	if err := h.Cache.Set(ctx, &product); err != nil {
		c.Logger().Errorf("cache set error: %v", err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	q := h.DB.Model(&models.Product{})

	if s := c.QueryParam("search"); s != "" {
		q = q.Where("lower(name) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	if cat := c.QueryParam("category"); cat != "" {
		if !models.Category(cat).Valid() {
			return errorResponse(c, http.StatusBadRequest, fmt.Errorf("unknown category %q", cat))
		}
		q = q.Where("category = ?", cat)
	}
	if brand := c.QueryParam("brand"); brand != "" {
		q = q.Where("brand = ?", brand)
	}
	if min := c.QueryParam("min_price"); min != "" {
		d, err := decimal.NewFromString(min)
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, errors.New("invalid min_price"))
		}
		q = q.Where("price >= ?", d)
	}
	if max := c.QueryParam("max_price"); max != "" {
		d, err := decimal.NewFromString(max)
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, errors.New("invalid max_price"))
		}
		q = q.Where("price <= ?", d)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}
	if !util.PageInRange(page, total, limit) {
		return errorResponse(c, http.StatusNotFound, fmt.Errorf("page %d not found", page))
	}

	var items []models.Product
	if err := q.Preload("Images").Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": util.TotalPages(total, limit),
		},
	})
}

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Brand       string          `json:"brand"`
	Category    models.Category `json:"category"`
	Stock       int             `json:"stock"`
}

func (req *productRequest) validate() error {
	if req.Name == "" || req.Description == "" || req.Brand == "" {
		return errors.New("name, description and brand are required")
	}
	if !req.Category.Valid() {
		return fmt.Errorf("unknown category %q", req.Category)
	}
	if req.Price.IsNegative() {
		return errors.New("price must not be negative")
	}
	if req.Stock < 0 {
		return errors.New("stock must not be negative")
	}
	return nil
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req productRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if err := req.validate(); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	prod := models.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Brand:       req.Brand,
		Category:    req.Category,
		Stock:       req.Stock,
		UserID:      &userID,
	}
	if err := h.DB.Create(&prod).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	h.index(c, &prod)
	h.publish(c, map[string]any{
		"type":      "product_created",
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return c.JSON(http.StatusCreated, prod)
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var prod models.Product
	if err := h.DB.First(&prod, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, fmt.Errorf("product %d not found", id))
		}
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}
	if err := h.requireOwnerOrAdmin(c, &prod); err != nil {
		return err
	}

	var req struct {
		Name        *string          `json:"name"`
		Description *string          `json:"description"`
		Price       *decimal.Decimal `json:"price"`
		Brand       *string          `json:"brand"`
		Category    *models.Category `json:"category"`
		Stock       *int             `json:"stock"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	if req.Name != nil {
		prod.Name = *req.Name
	}
	if req.Description != nil {
		prod.Description = *req.Description
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return errorResponse(c, http.StatusBadRequest, errors.New("price must not be negative"))
		}
		prod.Price = *req.Price
	}
	if req.Brand != nil {
		prod.Brand = *req.Brand
	}
	if req.Category != nil {
		if !req.Category.Valid() {
			return errorResponse(c, http.StatusBadRequest, fmt.Errorf("unknown category %q", *req.Category))
		}
		prod.Category = *req.Category
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return errorResponse(c, http.StatusBadRequest, errors.New("stock must not be negative"))
		}
		prod.Stock = *req.Stock
	}

	if err := h.DB.Save(&prod).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	if err := h.Cache.Invalidate(c.Request().Context(), prod.ID); err != nil {
		c.Logger().Errorf("cache invalidate error: %v", err)
	}
	h.index(c, &prod)
	h.publish(c, map[string]any{
		"type":      "product_updated",
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return c.JSON(http.StatusOK, prod)
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var prod models.Product
	if err := h.DB.Preload("Images").First(&prod, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, fmt.Errorf("product %d not found", id))
		}
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}
	if err := h.requireOwnerOrAdmin(c, &prod); err != nil {
		return err
	}

	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", prod.ID).Delete(&models.ProductImage{}).Error; err != nil {
			return err
		}
		// Placed orders keep their snapshots; only the catalog link is cut.
		if err := tx.Model(&models.OrderItem{}).
			Where("product_id = ?", prod.ID).
			Update("product_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Product{}, prod.ID).Error
	})
	if txErr != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	// Post-deletion hook: the rows are gone, now drop the backing blobs.
	for _, img := range prod.Images {
		if err := h.Blobs.Delete(img.Path); err != nil {
			c.Logger().Errorf("blob delete error: %v", err)
		}
	}

	if err := h.Cache.Invalidate(c.Request().Context(), prod.ID); err != nil {
		c.Logger().Errorf("cache invalidate error: %v", err)
	}
	if h.ES != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if err := search.DeleteProduct(ctx, h.ES, h.ESIndex, prod.ID); err != nil {
			c.Logger().Errorf("ES delete error: %v", err)
		}
	}
	h.publish(c, map[string]any{
		"type":      "product_deleted",
		"productID": prod.ID,
	})

	return c.NoContent(http.StatusNoContent)
}

func (h *ProductHandler) UploadImages(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var prod models.Product
	if err := h.DB.First(&prod, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, fmt.Errorf("product %d not found", id))
		}
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}
	if err := h.requireOwnerOrAdmin(c, &prod); err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, errors.New("multipart form required"))
	}
	files := form.File["images"]
	if len(files) == 0 {
		return errorResponse(c, http.StatusBadRequest, errors.New("no images provided"))
	}

	created := make([]models.ProductImage, 0, len(files))
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, err)
		}
		path, err := h.Blobs.Save(fh.Filename, src)
		src.Close()
		if err != nil {
			return errorResponse(c, http.StatusInternalServerError, errors.New("could not store image"))
		}

		img := models.ProductImage{
			ProductID: &prod.ID,
			Path:      path,
			URL:       h.BaseURL + "/media/" + path,
		}
		if err := h.DB.Create(&img).Error; err != nil {
			return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
		}
		created = append(created, img)
	}

	if err := h.Cache.Invalidate(c.Request().Context(), prod.ID); err != nil {
		c.Logger().Errorf("cache invalidate error: %v", err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *ProductHandler) DeleteImage(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var img models.ProductImage
	if err := h.DB.First(&img, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorResponse(c, http.StatusNotFound, fmt.Errorf("image %d not found", id))
		}
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	if img.ProductID != nil {
		var prod models.Product
		if err := h.DB.First(&prod, *img.ProductID).Error; err == nil {
			if err := h.requireOwnerOrAdmin(c, &prod); err != nil {
				return err
			}
		}
	}

	if err := h.DB.Delete(&models.ProductImage{}, img.ID).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}
	if err := h.Blobs.Delete(img.Path); err != nil {
		c.Logger().Errorf("blob delete error: %v", err)
	}
	if img.ProductID != nil {
		if err := h.Cache.Invalidate(c.Request().Context(), *img.ProductID); err != nil {
			c.Logger().Errorf("cache invalidate error: %v", err)
		}
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *ProductHandler) requireOwnerOrAdmin(c echo.Context, prod *models.Product) error {
	claims, err := GetClaims(c, h.JWTSecret)
	if err != nil {
		return err
	}
	if role, _ := claims["role"].(string); role == "admin" {
		return nil
	}
	sub, ok := claims["sub"].(float64)
	if !ok || prod.UserID == nil || *prod.UserID != uint(sub) {
		return echo.NewHTTPError(http.StatusForbidden, "not the product owner")
	}
	return nil
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mkovalev/emarket/internal/models"
	"github.com/mkovalev/emarket/internal/mykafka"
	"github.com/mkovalev/emarket/internal/repo"
	"github.com/mkovalev/emarket/internal/util"
)

// Order history pages are fixed at one order per page; each order already
// carries its full item list.
const ordersPageSize = 1

type OrderHandler struct {
	DB        *gorm.DB
	Repo      *repo.OrderRepo
	Producer  *mykafka.Producer
	JWTSecret []byte
}

func (h *OrderHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "order_events", fmt.Sprint(event["orderID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

type placeOrderRequest struct {
	Area    string `json:"area"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	ZipCode string `json:"zip_code"`
	PhoneNo string `json:"phone_no"`
	Items   []struct {
		ProductID uint `json:"product_id"`
		Quantity  uint `json:"quantity"`
	} `json:"order_items"`
}

// PlaceOrder creates an order and its items in one transaction: every
// product is resolved, its name/price/image snapshotted, the total summed
// from the snapshots, and stock decremented with a guard that fails the
// whole order rather than letting stock go negative. The reference behavior
// raced concurrent placements against the same stock; the guarded decrement
// closes that race.
func (h *OrderHandler) PlaceOrder(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req placeOrderRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if len(req.Items) == 0 {
		return errorResponse(c, http.StatusBadRequest,
			errors.New("no order items, please add at least one product"))
	}
	if req.Area == "" || req.City == "" || req.State == "" ||
		req.Country == "" || req.ZipCode == "" || req.PhoneNo == "" {
		return errorResponse(c, http.StatusBadRequest,
			errors.New("all shipping address fields are required"))
	}

	var order models.Order
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		total := decimal.Zero
		items := make([]models.OrderItem, 0, len(req.Items))

		for _, it := range req.Items {
			if it.Quantity == 0 {
				return echo.NewHTTPError(http.StatusBadRequest, "quantity must be positive")
			}

			var p models.Product
			if err := tx.Preload("Images").First(&p, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return echo.NewHTTPError(http.StatusBadRequest,
						fmt.Sprintf("product %d not found", it.ProductID))
				}
				return err
			}

			if err := repo.DecrementStock(tx, p.ID, it.Quantity); err != nil {
				if errors.Is(err, repo.ErrInsufficientStock) {
					return echo.NewHTTPError(http.StatusConflict,
						fmt.Sprintf("insufficient stock for product %d", p.ID))
				}
				return err
			}

			image := ""
			if len(p.Images) > 0 {
				image = p.Images[0].URL
			}
			productID := p.ID
			items = append(items, models.OrderItem{
				ProductID: &productID,
				Name:      p.Name,
				Price:     p.Price,
				Image:     image,
				Quantity:  it.Quantity,
			})
			total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}

		order = models.Order{
			UserID:        &userID,
			TotalAmount:   total,
			Area:          req.Area,
			City:          req.City,
			State:         req.State,
			Country:       req.Country,
			ZipCode:       req.ZipCode,
			PhoneNo:       req.PhoneNo,
			PaymentStatus: models.PaymentUnpaid,
			PaymentMode:   models.PaymentCOD,
			OrderStatus:   models.OrderProcessing,
			Items:         items,
		}
		return tx.Create(&order).Error
	})
	if txErr != nil {
		var he *echo.HTTPError
		if errors.As(txErr, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "could not place order")
	}

	h.publish(c, map[string]any{
		"type":    "order_placed",
		"orderID": order.ID,
		"userID":  userID,
		"total":   order.TotalAmount,
	})

	return c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	claims, err := GetClaims(c, h.JWTSecret)
	if err != nil {
		return err
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	order, err := h.Repo.Get(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorResponse(c, http.StatusNotFound, fmt.Errorf("order %d not found", id))
		}
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	if role, _ := claims["role"].(string); role != "admin" {
		sub, _ := claims["sub"].(float64)
		if order.UserID == nil || *order.UserID != uint(sub) {
			return echo.NewHTTPError(http.StatusForbidden, "not your order")
		}
	}

	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) GetOrders(c echo.Context) error {
	claims, err := GetClaims(c, h.JWTSecret)
	if err != nil {
		return err
	}

	filter := repo.OrderFilter{}

	if role, _ := claims["role"].(string); role != "admin" {
		sub, _ := claims["sub"].(float64)
		uid := uint(sub)
		filter.UserID = &uid
	} else if u := c.QueryParam("user"); u != "" {
		n, err := strconv.Atoi(u)
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, errors.New("invalid user filter"))
		}
		uid := uint(n)
		filter.UserID = &uid
	}

	if s := c.QueryParam("order_status"); s != "" {
		if !models.OrderStatus(s).Valid() {
			return errorResponse(c, http.StatusBadRequest, fmt.Errorf("unknown order status %q", s))
		}
		filter.OrderStatus = models.OrderStatus(s)
	}
	if s := c.QueryParam("payment_status"); s != "" {
		if !models.PaymentStatus(s).Valid() {
			return errorResponse(c, http.StatusBadRequest, fmt.Errorf("unknown payment status %q", s))
		}
		filter.PaymentStatus = models.PaymentStatus(s)
	}
	if s := c.QueryParam("from"); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, errors.New("invalid from date"))
		}
		filter.CreatedAfter = &ts
	}
	if s := c.QueryParam("to"); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, errors.New("invalid to date"))
		}
		filter.CreatedBefore = &ts
	}

	page := parseIntDefault(c.QueryParam("page"), 1)
	offset, limit := util.Calculate(page, ordersPageSize)

	ctx := c.Request().Context()
	total, err := h.Repo.Count(ctx, filter)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}
	if !util.PageInRange(page, total, limit) {
		return errorResponse(c, http.StatusNotFound, fmt.Errorf("page %d not found", page))
	}

	orders, err := h.Repo.List(ctx, filter, offset, limit)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": orders,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": util.TotalPages(total, limit),
		},
	})
}

// UpdateOrder applies a partial status update. Admin-only by routing.
func (h *OrderHandler) UpdateOrder(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var req struct {
		OrderStatus   *models.OrderStatus   `json:"order_status"`
		PaymentStatus *models.PaymentStatus `json:"payment_status"`
		PaymentMode   *models.PaymentMode   `json:"payment_mode"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	order, err := h.Repo.Get(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorResponse(c, http.StatusNotFound, fmt.Errorf("order %d not found", id))
		}
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	if req.OrderStatus != nil {
		if !req.OrderStatus.Valid() {
			return errorResponse(c, http.StatusBadRequest, fmt.Errorf("unknown order status %q", *req.OrderStatus))
		}
		order.OrderStatus = *req.OrderStatus
	}
	if req.PaymentStatus != nil {
		if !req.PaymentStatus.Valid() {
			return errorResponse(c, http.StatusBadRequest, fmt.Errorf("unknown payment status %q", *req.PaymentStatus))
		}
		order.PaymentStatus = *req.PaymentStatus
	}
	if req.PaymentMode != nil {
		if !req.PaymentMode.Valid() {
			return errorResponse(c, http.StatusBadRequest, fmt.Errorf("unknown payment mode %q", *req.PaymentMode))
		}
		order.PaymentMode = *req.PaymentMode
	}

	if err := h.DB.Save(order).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	h.publish(c, map[string]any{
		"type":    "order_updated",
		"orderID": order.ID,
		"status":  order.OrderStatus,
	})

	return c.JSON(http.StatusOK, order)
}

// DeleteOrder removes the order and its items; referenced products stay.
func (h *OrderHandler) DeleteOrder(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	if err := h.Repo.Delete(c.Request().Context(), uint(id)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorResponse(c, http.StatusNotFound, fmt.Errorf("order %d not found", id))
		}
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	h.publish(c, map[string]any{
		"type":    "order_deleted",
		"orderID": id,
	})

	return c.NoContent(http.StatusNoContent)
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mkovalev/emarket/internal/models"
	"github.com/mkovalev/emarket/internal/mykafka"
	"github.com/mkovalev/emarket/internal/payment"
	"github.com/mkovalev/emarket/internal/repo"
)

type PaymentHandler struct {
	DB            *gorm.DB
	Repo          *repo.OrderRepo
	Gateway       payment.Gateway
	WebhookSecret string
	JWTSecret     []byte
	Producer      *mykafka.Producer
	BaseURL       string
}

func (h *PaymentHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "order_events", fmt.Sprint(event["orderID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

// CreateCheckoutSession requests a hosted checkout session from the gateway
// for an existing order (path id) or an ad-hoc item list (body). Shipping
// metadata travels on the session so the webhook can rebuild the order
// without trusting client input at delivery time.
func (h *PaymentHandler) CreateCheckoutSession(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var (
		lineItems []payment.LineItem
		metadata  map[string]string
	)

	if idParam := c.Param("id"); idParam != "" {
		id, err := strconv.Atoi(idParam)
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
		if order.UserID == nil || *order.UserID != userID {
			if !IsAdmin(c, h.JWTSecret) {
				return echo.NewHTTPError(http.StatusForbidden, "not your order")
			}
		}

		lineItems = make([]payment.LineItem, 0, len(order.Items))
		for _, it := range order.Items {
			li := payment.LineItem{
				Name:       it.Name,
				ImageURL:   it.Image,
				UnitAmount: minorUnits(it.Price),
				Quantity:   it.Quantity,
			}
			if it.ProductID != nil {
				li.Metadata = map[string]string{"product_id": fmt.Sprint(*it.ProductID)}
			}
			lineItems = append(lineItems, li)
		}
		metadata = shippingMetadata(order.Area, order.City, order.State, order.Country,
			order.ZipCode, order.PhoneNo, userID)
	} else {
		var req placeOrderRequest
		if err := c.Bind(&req); err != nil {
			return errorResponse(c, http.StatusBadRequest, err)
		}
		if len(req.Items) == 0 {
			return errorResponse(c, http.StatusBadRequest,
				errors.New("no order items, please add at least one product"))
		}

		lineItems = make([]payment.LineItem, 0, len(req.Items))
		for _, it := range req.Items {
			var p models.Product
			if err := h.DB.Preload("Images").First(&p, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errorResponse(c, http.StatusBadRequest,
						fmt.Errorf("product %d not found", it.ProductID))
				}
				return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
			}
			image := ""
			if len(p.Images) > 0 {
				image = p.Images[0].URL
			}
			lineItems = append(lineItems, payment.LineItem{
				Name:       p.Name,
				ImageURL:   image,
				UnitAmount: minorUnits(p.Price),
				Quantity:   it.Quantity,
				Metadata:   map[string]string{"product_id": fmt.Sprint(p.ID)},
			})
		}
		metadata = shippingMetadata(req.Area, req.City, req.State, req.Country,
			req.ZipCode, req.PhoneNo, userID)
	}

	session, err := h.Gateway.CreateCheckoutSession(c.Request().Context(), &payment.SessionParams{
		SuccessURL:      h.BaseURL + "/payment/success",
		CancelURL:       h.BaseURL + "/payment/cancel",
		ClientReference: uuid.NewString(),
		LineItems:       lineItems,
		Metadata:        metadata,
	})
	if err != nil {
		c.Logger().Errorf("checkout session error: %v", err)
		return errorResponse(c, http.StatusBadGateway, errors.New("payment gateway unavailable"))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"session_id": session.ID,
		"url":        session.URL,
	})
}

// Webhook reconciles an asynchronous gateway event into local order rows.
// Signature verification is the sole trust boundary: nothing below it runs
// for a payload the gateway did not sign. The gateway retries on any
// non-2xx, so every verified event must end in a 2xx — including replays,
// which acknowledge without materializing a second order.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, errors.New("cannot read body"))
	}

	sig := c.Request().Header.Get(payment.SignatureHeader)
	if err := payment.VerifySignature(body, sig, h.WebhookSecret); err != nil {
		return errorResponse(c, http.StatusBadRequest, errors.New("invalid signature"))
	}

	ev, err := payment.ParseEvent(body)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, errors.New("malformed event"))
	}

	if ev.Type != payment.EventCheckoutCompleted {
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	var seen models.WebhookEvent
	if err := h.DB.Where("event_id = ?", ev.ID).First(&seen).Error; err == nil {
		return c.JSON(http.StatusOK, echo.Map{"received": true, "duplicate": true})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	session := ev.Data.Session
	if len(session.LineItems) == 0 {
		return errorResponse(c, http.StatusBadRequest, errors.New("event carries no line items"))
	}

	var order models.Order
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.WebhookEvent{
			EventID:    ev.ID,
			ReceivedAt: time.Now(),
		}).Error; err != nil {
			return err
		}

		total := decimal.Zero
		items := make([]models.OrderItem, 0, len(session.LineItems))
		for _, li := range session.LineItems {
			price := decimal.New(li.UnitAmount, -2)
			item := models.OrderItem{
				Name:     li.Name,
				Price:    price,
				Image:    li.ImageURL,
				Quantity: li.Quantity,
			}

			// The gateway's line items are authoritative for what was paid;
			// the metadata product id links back to the catalog when it
			// still resolves.
			if idStr, ok := li.Metadata["product_id"]; ok {
				if id, err := strconv.ParseUint(idStr, 10, 64); err == nil {
					var p models.Product
					if err := tx.First(&p, uint(id)).Error; err == nil {
						productID := p.ID
						item.ProductID = &productID
						if err := repo.DecrementStock(tx, p.ID, li.Quantity); err != nil {
							if !errors.Is(err, repo.ErrInsufficientStock) {
								return err
							}
							// Payment is already captured; the order must
							// exist even if stock bookkeeping ran dry.
							if err := tx.Model(&models.Product{}).
								Where("id = ?", p.ID).
								UpdateColumn("stock", 0).Error; err != nil {
								return err
							}
						}
					}
				}
			}

			items = append(items, item)
			total = total.Add(price.Mul(decimal.NewFromInt(int64(li.Quantity))))
		}

		order = models.Order{
			UserID:        sessionUserID(tx, session.Metadata),
			TotalAmount:   total,
			Area:          session.Metadata["area"],
			City:          session.Metadata["city"],
			State:         session.Metadata["state"],
			Country:       session.Metadata["country"],
			ZipCode:       session.Metadata["zip_code"],
			PhoneNo:       session.Metadata["phone_no"],
			PaymentStatus: models.PaymentPaid,
			PaymentMode:   models.PaymentCard,
			OrderStatus:   models.OrderProcessing,
			Items:         items,
		}
		return tx.Create(&order).Error
	})
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrDuplicatedKey) {
			return c.JSON(http.StatusOK, echo.Map{"received": true, "duplicate": true})
		}
		c.Logger().Errorf("webhook materialization error: %v", txErr)
		return errorResponse(c, http.StatusInternalServerError, errors.New("internal error"))
	}

	h.publish(c, map[string]any{
		"type":    "order_paid",
		"orderID": order.ID,
		"eventID": ev.ID,
	})

	return c.JSON(http.StatusOK, echo.Map{"received": true, "order_id": order.ID})
}

func minorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func shippingMetadata(area, city, state, country, zip, phone string, userID uint) map[string]string {
	return map[string]string{
		"area":     area,
		"city":     city,
		"state":    state,
		"country":  country,
		"zip_code": zip,
		"phone_no": phone,
		"user_id":  fmt.Sprint(userID),
	}
}

// sessionUserID resolves the purchaser recorded at session-creation time;
// a stale or missing id yields a nil owner, never a failed order.
func sessionUserID(tx *gorm.DB, metadata map[string]string) *uint {
	idStr, ok := metadata["user_id"]
	if !ok {
		return nil
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return nil
	}
	var user models.User
	if err := tx.First(&user, uint(id)).Error; err != nil {
		return nil
	}
	uid := user.ID
	return &uid
}

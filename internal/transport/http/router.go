package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/mkovalev/emarket/internal/handlers"
	"github.com/mkovalev/emarket/internal/service"
)

type Deps struct {
	DB             *gorm.DB
	AuthHandler    *handlers.AuthHandler
	ProductHandler *handlers.ProductHandler
	OrderHandler   *handlers.OrderHandler
	PaymentHandler *handlers.PaymentHandler
	SearchHandler  *handlers.SearchHandler
	Tokens         *service.TokenService
	MediaDir       string
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	if d.MediaDir != "" {
		e.Static("/media", d.MediaDir)
	}

	api := e.Group("/api")

	account := api.Group("/account")
	account.POST("/register", d.AuthHandler.Register)
	account.POST("/login", d.AuthHandler.Login)
	account.POST("/logout", d.AuthHandler.LogOut)
	account.PATCH("/update", d.AuthHandler.UpdateProfile, d.Tokens.AutoRefreshMiddleware)
	account.POST("/forgot_password", d.AuthHandler.ForgotPassword)
	account.POST("/reset_password/:token", d.AuthHandler.ResetPassword)

	products := api.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/search", d.SearchHandler.Search)
	products.GET("/:id", d.ProductHandler.GetProduct)
	products.POST("/:id/images", d.ProductHandler.UploadImages, d.Tokens.AutoRefreshMiddleware)
	products.DELETE("/images/:id", d.ProductHandler.DeleteImage, d.Tokens.AutoRefreshMiddleware)
	products.POST("/:id/review", d.ProductHandler.CreateOrUpdateReview, d.Tokens.AutoRefreshMiddleware)
	products.DELETE("/:id/review", d.ProductHandler.DeleteReview, d.Tokens.AutoRefreshMiddleware)

	admin := api.Group("/admin", d.Tokens.AutoRefreshMiddlewareAdmin)
	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)
	admin.PATCH("/orders/:id", d.OrderHandler.UpdateOrder)
	admin.DELETE("/orders/:id", d.OrderHandler.DeleteOrder)

	orders := api.Group("/orders", d.Tokens.AutoRefreshMiddleware)
	orders.POST("", d.OrderHandler.PlaceOrder)
	orders.GET("", d.OrderHandler.GetOrders)
	orders.GET("/:id", d.OrderHandler.GetOrder)
	orders.POST("/checkout-session", d.PaymentHandler.CreateCheckoutSession)
	orders.POST("/:id/checkout-session", d.PaymentHandler.CreateCheckoutSession)

	// The gateway signs the raw body; verification happens in the handler.
	api.POST("/payment/webhook", d.PaymentHandler.Webhook)
}

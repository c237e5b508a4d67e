// Package api - JSON-версия операций бота, а также health, metrics и webhook Telegram.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"tg_shop/internal/cache"
	"tg_shop/internal/cart"
	db "tg_shop/internal/database"
	"tg_shop/internal/metrics"
	"tg_shop/internal/orders"
	"tg_shop/internal/payment"
	"tg_shop/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Deps struct {
	DB       *gorm.DB
	Users    *cache.UserCache
	Cart     *cart.Service
	Orders   *orders.Service
	Payments *payment.Service
	Metrics  *metrics.Metrics
	Log      *zap.Logger

	// Webhook подключается на POST /webhook, если задан
	Webhook gin.HandlerFunc
}

type handler struct {
	db       *gorm.DB
	users    *cache.UserCache
	cart     *cart.Service
	orders   *orders.Service
	payments *payment.Service
	log      *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	if d.Metrics == nil {
		d.Metrics = metrics.Nop()
	}
	h := &handler{
		db:       d.DB,
		users:    d.Users,
		cart:     d.Cart,
		orders:   d.Orders,
		payments: d.Payments,
		log:      d.Log.Named("api"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.log), d.Metrics.Middleware())

	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	r.GET("/users/:telegram_id", h.getUser)
	r.POST("/products", h.createProduct)
	r.GET("/products", h.listProducts)
	r.POST("/cart/add", h.addToCart)
	r.GET("/cart/:user_id", h.getCart)
	r.GET("/orders/:user_id", h.listOrders)
	r.POST("/pay", h.pay)
	r.POST("/payment/callback", h.paymentCallback)

	if d.Webhook != nil {
		r.POST("/webhook", d.Webhook)
	}
	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

// fail переводит ошибки в HTTP-коды. Внутренние ошибки пишутся в лог и не показываются клиенту.
func (h *handler) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(code, gin.H{"error": "internal error"})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrForbidden), errors.Is(err, models.ErrUserBlocked), errors.Is(err, models.ErrInvalidSignature):
		return http.StatusForbidden
	case errors.Is(err, models.ErrProductUnavailable), errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrEmptyCart), errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrAlreadyPaid), errors.Is(err, models.ErrAmountMismatch):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func (h *handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := db.Ping(ctx, h.db); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type userOut struct {
	ID         uuid.UUID   `json:"id"`
	TelegramID int64       `json:"telegram_id"`
	Username   string      `json:"username,omitempty"`
	Role       models.Role `json:"role"`
	IsAdmin    bool        `json:"is_admin"`
	IsBlocked  bool        `json:"is_blocked"`
}

func (h *handler) getUser(c *gin.Context) {
	tgID, err := strconv.ParseInt(c.Param("telegram_id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid telegram_id")
		return
	}
	u, err := h.users.Get(c.Request.Context(), tgID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, userOut{
		ID:         u.ID,
		TelegramID: u.TelegramID,
		Username:   u.Username,
		Role:       u.Role,
		IsAdmin:    u.IsAdmin(),
		IsBlocked:  u.IsBlocked,
	})
}

type productIn struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"image_url" binding:"omitempty,url"`
}

type productOut struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"image_url,omitempty"`
	ImageFileID string          `json:"image_file_id,omitempty"`
}

func toProductOut(p models.Product) productOut {
	return productOut{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		ImageURL:    p.ImageURL,
		ImageFileID: p.ImageFileID,
	}
}

func (h *handler) createProduct(c *gin.Context) {
	var in productIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	p := &models.Product{Name: in.Name, Description: in.Description, Price: in.Price, Stock: in.Stock, ImageURL: in.ImageURL}
	if err := db.CreateProduct(c.Request.Context(), h.db, p); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProductOut(*p))
}

func (h *handler) listProducts(c *gin.Context) {
	list, err := db.ListActiveProducts(c.Request.Context(), h.db, c.Query("search"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]productOut, 0, len(list))
	for _, p := range list {
		out = append(out, toProductOut(p))
	}
	c.JSON(http.StatusOK, out)
}

type addToCartIn struct {
	UserID    uuid.UUID `json:"user_id" binding:"required"`
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required"`
}

type cartItemOut struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

func toCartItemOut(it models.CartItem) cartItemOut {
	return cartItemOut{
		ID:          it.ID,
		ProductID:   it.ProductID,
		ProductName: it.ProductName,
		Quantity:    it.Quantity,
		UnitPrice:   it.UnitPrice,
		Subtotal:    it.Subtotal(),
	}
}

func (h *handler) addToCart(c *gin.Context) {
	var in addToCartIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	user, err := db.GetUserByID(ctx, h.db, in.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if user.IsBlocked {
		h.fail(c, models.ErrUserBlocked)
		return
	}
	item, err := h.cart.Add(ctx, user.ID, in.ProductID, in.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := db.TouchActivity(ctx, h.db, user.TelegramID); err != nil {
		h.log.Warn("touch activity failed", zap.Int64("telegram_id", user.TelegramID), zap.Error(err))
	}
	c.JSON(http.StatusOK, toCartItemOut(*item))
}

func (h *handler) getCart(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	items, err := h.cart.Items(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]cartItemOut, 0, len(items))
	for _, it := range items {
		out = append(out, toCartItemOut(it))
	}
	c.JSON(http.StatusOK, gin.H{"items": out, "total": cart.Total(items)})
}

type orderItemOut struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type orderOut struct {
	ID          uuid.UUID          `json:"id"`
	OutNo       string             `json:"out_no"`
	UserID      uuid.UUID          `json:"user_id"`
	Items       []orderItemOut     `json:"items"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Status      models.OrderStatus `json:"status"`
	IsPaid      bool               `json:"is_paid"`
	CreatedAt   time.Time          `json:"created_at"`
	PaidAt      *time.Time         `json:"paid_at,omitempty"`
}

func toOrderOut(o models.Order) orderOut {
	items := make([]orderItemOut, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemOut{ProductID: it.ProductID, ProductName: it.ProductName, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return orderOut{
		ID:          o.ID,
		OutNo:       o.OutNo,
		UserID:      o.UserID,
		Items:       items,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
		IsPaid:      o.IsPaid,
		CreatedAt:   o.CreatedAt,
		PaidAt:      o.PaidAt,
	}
}

func (h *handler) listOrders(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	list, err := h.orders.GetByUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]orderOut, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderOut(o))
	}
	c.JSON(http.StatusOK, out)
}

type payIn struct {
	OrderID uuid.UUID `json:"order_id" binding:"required"`
}

func (h *handler) pay(c *gin.Context) {
	var in payIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.payments.CreatePayment(c.Request.Context(), in.OrderID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":    p.OrderID,
		"out_no":      p.OutNo,
		"amount":      p.Amount,
		"payment_url": p.URL,
		"sandbox":     p.Sandbox,
	})
}

func (h *handler) paymentCallback(c *gin.Context) {
	var cb payment.Callback
	if err := c.ShouldBindJSON(&cb); err != nil {
		badRequest(c, err.Error())
		return
	}
	o, err := h.payments.HandleCallback(c.Request.Context(), cb)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderOut(*o))
}

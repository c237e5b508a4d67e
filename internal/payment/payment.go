package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"tg_shop/internal/config"
	"tg_shop/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// Orders - то, что платёжке нужно от сервиса заказов
type Orders interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByOutNo(ctx context.Context, outNo string) (*models.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paymentID string) (*models.Order, error)
	MarkAwaitingPayment(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type Payment struct {
	OrderID uuid.UUID       `json:"order_id"`
	OutNo   string          `json:"out_no"`
	Amount  decimal.Decimal `json:"amount"`
	URL     string          `json:"payment_url"`
	Sandbox bool            `json:"sandbox"`
}

// Callback - уведомление платёжной системы об оплате
type Callback struct {
	OutNo     string          `json:"out_no" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	PaymentID string          `json:"payment_id"`
	Sign      string          `json:"sign" binding:"required"`
}

type Service struct {
	orders   Orders
	tunables *config.Tunables
	apiKey   string
	client   *http.Client
	log      *zap.Logger
}

func New(orders Orders, tunables *config.Tunables, apiKey string, log *zap.Logger) *Service {
	return &Service{
		orders:   orders,
		tunables: tunables,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log.Named("payment"),
	}
}

// provider выбирается на каждый вызов: флаг sandbox может смениться при обновлении настроек
func (s *Service) provider() Provider {
	base := s.tunables.PaymentAPIBase()
	if s.tunables.PaymentSandbox() || base == "" {
		return SandboxProvider{}
	}
	return &HTTPProvider{Base: base, APIKey: s.apiKey, Client: s.client}
}

// CreatePayment выдаёт ссылку на оплату заказа и переводит его в unpaid
func (s *Service) CreatePayment(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("%w: заказ в статусе %s нельзя оплатить", models.ErrInvalidTransition, order.Status)
	}
	if order.IsPaid {
		return nil, models.ErrAlreadyPaid
	}
	if !models.CanTransition(order.Status, models.StatusPaid) {
		return nil, fmt.Errorf("%w: заказ в статусе %s нельзя оплатить", models.ErrInvalidTransition, order.Status)
	}

	p := s.provider()
	link, err := p.Link(ctx, order)
	if err != nil {
		s.log.Error("payment link failed", zap.String("out_no", order.OutNo), zap.Error(err))
		return nil, fmt.Errorf("payment link: %w", err)
	}
	if _, err := s.orders.MarkAwaitingPayment(ctx, order.ID); err != nil {
		return nil, err
	}

	_, sandbox := p.(SandboxProvider)
	s.log.Info("payment created", zap.String("out_no", order.OutNo), zap.String("amount", order.TotalAmount.StringFixed(2)), zap.Bool("sandbox", sandbox))
	return &Payment{OrderID: order.ID, OutNo: order.OutNo, Amount: order.TotalAmount, URL: link, Sandbox: sandbox}, nil
}

// HandleCallback проверяет подпись и сумму, затем отмечает заказ оплаченным.
// Повторное уведомление по оплаченному заказу возвращает его без изменений.
func (s *Service) HandleCallback(ctx context.Context, cb Callback) (*models.Order, error) {
	if !Verify(s.apiKey, cb) {
		s.log.Warn("callback signature mismatch", zap.String("out_no", cb.OutNo))
		return nil, models.ErrInvalidSignature
	}
	order, err := s.orders.GetByOutNo(ctx, cb.OutNo)
	if err != nil {
		return nil, err
	}
	if !cb.Amount.Round(2).Equal(order.TotalAmount.Round(2)) {
		s.log.Warn("callback amount mismatch",
			zap.String("out_no", cb.OutNo),
			zap.String("expected", order.TotalAmount.StringFixed(2)),
			zap.String("got", cb.Amount.StringFixed(2)))
		return nil, models.ErrAmountMismatch
	}
	return s.orders.MarkPaid(ctx, order.ID, cb.PaymentID)
}

// Sign - HMAC-SHA256 от "out_no|amount" (сумма с двумя знаками), hex
func Sign(key, outNo string, amount decimal.Decimal) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(outNo + "|" + amount.StringFixed(2)))
	return hex.EncodeToString(mac.Sum(nil))
}

func Verify(key string, cb Callback) bool {
	want := Sign(key, cb.OutNo, cb.Amount)
	return hmac.Equal([]byte(want), []byte(cb.Sign))
}

// GenerateQR рисует PNG 256x256 с низким уровнем коррекции
func GenerateQR(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: пустая ссылка", models.ErrValidation)
	}
	return qrcode.Encode(url, qrcode.Low, 256)
}

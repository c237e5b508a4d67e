package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"tg_shop/models"
)

type Provider interface {
	Link(ctx context.Context, order *models.Order) (string, error)
}

const sandboxURL = "https://sandbox.example.com/pay"

// SandboxProvider отдаёт фиктивную ссылку без внешних запросов
type SandboxProvider struct{}

func (SandboxProvider) Link(_ context.Context, order *models.Order) (string, error) {
	q := url.Values{}
	q.Set("out_no", order.OutNo)
	q.Set("amount", order.TotalAmount.StringFixed(2))
	return sandboxURL + "?" + q.Encode(), nil
}

// HTTPProvider запрашивает ссылку у платёжного API: GET {base}/{out_no} -> {"payment_url": "..."}
type HTTPProvider struct {
	Base   string
	APIKey string
	Client *http.Client
}

func (p *HTTPProvider) Link(ctx context.Context, order *models.Order) (string, error) {
	base := strings.TrimRight(p.Base, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+url.PathEscape(order.OutNo), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Accept", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("payment api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		PaymentURL string `json:"payment_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode payment api response: %w", err)
	}
	if out.PaymentURL == "" {
		return base + "/pay/" + url.PathEscape(order.OutNo), nil
	}
	return out.PaymentURL, nil
}

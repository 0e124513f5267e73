// Package alert предоставляет клиент для отправки webhook-оповещений
// о расхождениях сверки смен.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client инкапсулирует HTTP-взаимодействие с приёмником оповещений.
type Client struct {
	webhookURL string
	httpClient *http.Client
}

// VarianceAlert описывает оповещение о расхождении по одной смене.
type VarianceAlert struct {
	ReadingID   string          `json:"readingId"`
	Date        string          `json:"date"`
	Machine     string          `json:"machine"`
	Shift       string          `json:"shift"`
	NetAmount   decimal.Decimal `json:"netAmount"`
	ShortExcess decimal.Decimal `json:"shortExcess"`
}

// NewClient создаёт HTTP-клиент для отправки оповещений по указанному адресу.
func NewClient(webhookURL string) *Client {
	return &Client{
		webhookURL: strings.TrimRight(webhookURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// SendVarianceAlert отправляет оповещение о расхождении. Любой ответ,
// кроме 2xx, считается ошибкой; повторная отправка — забота вызывающего.
func (c *Client) SendVarianceAlert(ctx context.Context, a VarianceAlert) error {
	if c == nil || c.webhookURL == "" {
		return fmt.Errorf("alert client not configured")
	}

	url := c.webhookURL
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}

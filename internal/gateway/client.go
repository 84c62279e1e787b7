package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/uniqn/chip-service/internal/cerr"
	"github.com/uniqn/chip-service/internal/config"
	"github.com/uniqn/chip-service/internal/logger"
)

// PaymentGateway 外部支付网关接口（토스페이먼츠）
// 网关侧不保证幂等，调用失败按"可能已生效"处理，幂等由本侧订单号记账保证
type PaymentGateway interface {
	Confirm(ctx context.Context, paymentKey, orderId string, amount int64) (*Result, error)
	Cancel(ctx context.Context, paymentKey string, cancelAmount int64, reason string) (*Result, error)
}

// Result 网关返回结果
type Result struct {
	Status string `json:"status"`
	Raw    string `json:"-"`
}

// Client 支付网关HTTP客户端
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
}

// Init 创建支付网关客户端
func Init(cfg config.GatewayConfig) *Client {
	// Basic auth: secret key 作为用户名，密码为空
	auth := base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey + ":"))
	return &Client{
		baseURL:    cfg.BaseURL,
		authHeader: "Basic " + auth,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
	}
}

// Confirm 确认支付
func (c *Client) Confirm(ctx context.Context, paymentKey, orderId string, amount int64) (*Result, error) {
	body := map[string]interface{}{
		"paymentKey": paymentKey,
		"orderId":    orderId,
		"amount":     amount,
	}
	return c.post(ctx, "/v1/payments/confirm", body)
}

// Cancel 取消（退款）支付
func (c *Client) Cancel(ctx context.Context, paymentKey string, cancelAmount int64, reason string) (*Result, error) {
	body := map[string]interface{}{
		"cancelReason": reason,
		"cancelAmount": cancelAmount,
	}
	return c.post(ctx, fmt.Sprintf("/v1/payments/%s/cancel", paymentKey), body)
}

func (c *Client) post(ctx context.Context, path string, body map[string]interface{}) (*Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("Gateway request %s failed: %v", path, err)
		return nil, &cerr.GatewayError{Status: 0, Msg: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &cerr.GatewayError{Status: resp.StatusCode, Msg: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Error("Gateway request %s returned %d: %s", path, resp.StatusCode, raw)
		return nil, &cerr.GatewayError{Status: resp.StatusCode, Msg: gatewayMessage(raw)}
	}

	result := &Result{Raw: string(raw)}
	if err := json.Unmarshal(raw, result); err != nil {
		// 状态码成功但响应无法解析，保留原始内容
		result.Status = "UNKNOWN"
	}
	return result, nil
}

func gatewayMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return string(raw)
}

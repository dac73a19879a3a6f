package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/acctportal/billingcore/internal/config"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/httpclient"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/types"
)

const (
	defaultTossBaseURL = "https://api.tosspayments.com"
	tossStatusDone     = "DONE"
	tossStatusCanceled = "CANCELED"
	tossStatusPartial  = "PARTIAL_CANCELED"
)

// TossClient talks to a Toss Payments style REST API with billing keys
type TossClient struct {
	client  httpclient.Client
	baseURL string
	auth    string
	logger  *logger.Logger
}

func NewTossClient(cfg config.GatewayConfig, client httpclient.Client, logger *logger.Logger) *TossClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultTossBaseURL
	}
	return &TossClient{
		client:  client,
		baseURL: baseURL,
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey+":")),
		logger:  logger,
	}
}

type tossCard struct {
	Company   string `json:"company"`
	Issuer    string `json:"issuerCode"`
	Number    string `json:"number"`
	CardType  string `json:"cardType"`
	OwnerType string `json:"ownerType"`
}

type tossCancel struct {
	CancelAmount int64  `json:"cancelAmount"`
	CancelReason string `json:"cancelReason"`
	CanceledAt   string `json:"canceledAt"`
}

type tossPayment struct {
	PaymentKey  string       `json:"paymentKey"`
	OrderID     string       `json:"orderId"`
	Status      string       `json:"status"`
	Method      string       `json:"method"`
	TotalAmount int64        `json:"totalAmount"`
	ApprovedAt  string       `json:"approvedAt"`
	Card        *tossCard    `json:"card"`
	Cancels     []tossCancel `json:"cancels"`
	Receipt     *struct {
		URL string `json:"url"`
	} `json:"receipt"`
}

type tossBillingKey struct {
	BillingKey  string    `json:"billingKey"`
	CustomerKey string    `json:"customerKey"`
	CardCompany string    `json:"cardCompany"`
	CardNumber  string    `json:"cardNumber"`
	Card        *tossCard `json:"card"`
}

type tossError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *TossClient) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	body := map[string]any{
		"customerKey": req.CustomerKey,
		"amount":      req.Amount,
		"orderId":     req.OrderID,
		"orderName":   req.OrderName,
	}
	if req.CustomerEmail != "" {
		body["customerEmail"] = req.CustomerEmail
	}
	if req.CustomerName != "" {
		body["customerName"] = req.CustomerName
	}

	var p tossPayment
	path := "/v1/billing/" + url.PathEscape(req.BillingKey)
	if err := c.do(ctx, "charge", http.MethodPost, path, req.OrderID, body, &p); err != nil {
		return nil, err
	}

	if p.Status != tossStatusDone {
		return nil, ierr.NewGatewayError(&ierr.GatewayError{
			Op:      "charge",
			Code:    "NOT_DONE",
			Message: "payment finished with status " + p.Status,
		})
	}

	return &ChargeResult{
		PaymentKey:  p.PaymentKey,
		OrderID:     p.OrderID,
		Status:      types.PaymentStatusDone,
		Method:      p.Method,
		TotalAmount: p.TotalAmount,
		CardInfo:    p.Card.info(""),
		ReceiptURL:  p.receiptURL(),
		ApprovedAt:  parseTossTime(p.ApprovedAt),
	}, nil
}

func (c *TossClient) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	body := map[string]any{
		"cancelReason": req.Reason,
		"cancelAmount": req.Amount,
	}

	var p tossPayment
	path := "/v1/payments/" + url.PathEscape(req.PaymentKey) + "/cancel"
	if err := c.do(ctx, "refund", http.MethodPost, path, req.IdempotencyKey, body, &p); err != nil {
		return nil, err
	}

	status := types.PaymentStatusDone
	if p.Status != tossStatusCanceled && p.Status != tossStatusPartial {
		status = types.PaymentStatusFailed
	}
	return &RefundResult{
		PaymentKey:     p.PaymentKey,
		Status:         status,
		CanceledAmount: req.Amount,
		ReceiptURL:     p.receiptURL(),
	}, nil
}

func (c *TossClient) GetPayment(ctx context.Context, paymentKey string) (*PaymentDetails, error) {
	var p tossPayment
	if err := c.do(ctx, "get_payment", http.MethodGet, "/v1/payments/"+url.PathEscape(paymentKey), "", nil, &p); err != nil {
		return nil, err
	}

	details := &PaymentDetails{PaymentKey: p.PaymentKey, TotalAmount: p.TotalAmount}
	for _, cancel := range p.Cancels {
		details.Cancels = append(details.Cancels, Cancel{
			Amount:     cancel.CancelAmount,
			Reason:     cancel.CancelReason,
			CanceledAt: parseTossTime(cancel.CanceledAt),
		})
	}
	return details, nil
}

func (c *TossClient) IssueBillingKey(ctx context.Context, req *IssueBillingKeyRequest) (*BillingKeyResult, error) {
	body := map[string]any{
		"authKey":     req.AuthKey,
		"customerKey": req.CustomerKey,
	}

	var bk tossBillingKey
	if err := c.do(ctx, "issue_billing_key", http.MethodPost, "/v1/billing/authorizations/issue", "", body, &bk); err != nil {
		return nil, err
	}

	info := bk.Card.info(bk.CardCompany)
	if info.Number == "" {
		info.Number = bk.CardNumber
	}
	return &BillingKeyResult{
		BillingKey:  bk.BillingKey,
		CustomerKey: bk.CustomerKey,
		CardInfo:    info,
	}, nil
}

func (c *TossClient) do(ctx context.Context, op, method, path, idempotencyKey string, body any, out any) error {
	req := &httpclient.Request{
		Method: method,
		URL:    c.baseURL + path,
		Headers: map[string]string{
			"Authorization": c.auth,
		},
	}
	if idempotencyKey != "" {
		req.Headers["Idempotency-Key"] = idempotencyKey
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return ierr.WithError(err).Mark(ierr.ErrSystem)
		}
		req.Body = b
	}

	resp, err := c.client.Send(ctx, req)
	if err != nil {
		return c.translate(op, err)
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return ierr.NewGatewayError(&ierr.GatewayError{
			Op:         op,
			Code:       "INVALID_RESPONSE",
			Message:    "could not decode gateway response",
			StatusCode: resp.StatusCode,
			Err:        err,
		})
	}
	return nil
}

func (c *TossClient) translate(op string, err error) error {
	gwErr := &ierr.GatewayError{Op: op, Err: err}

	if httpErr, ok := httpclient.IsHTTPError(err); ok {
		gwErr.StatusCode = httpErr.StatusCode
		var body tossError
		if json.Unmarshal(httpErr.Response, &body) == nil {
			gwErr.Code = body.Code
			gwErr.Message = body.Message
		}
	} else if tErr, ok := httpclient.IsTransportError(err); ok {
		gwErr.Timeout = tErr.Timeout
		gwErr.Code = "NETWORK_ERROR"
		if tErr.Timeout {
			gwErr.Code = "TIMEOUT"
		}
	}

	c.logger.Warnw("gateway call failed",
		"operation", op,
		"code", gwErr.Code,
		"status_code", gwErr.StatusCode,
		"timeout", gwErr.Timeout,
	)
	return ierr.NewGatewayError(gwErr)
}

func (p *tossPayment) receiptURL() string {
	if p.Receipt == nil {
		return ""
	}
	return p.Receipt.URL
}

func (c *tossCard) info(company string) types.CardInfo {
	if c == nil {
		return types.CardInfo{Company: company}
	}
	if c.Company != "" {
		company = c.Company
	} else if company == "" {
		company = c.Issuer
	}
	return types.CardInfo{
		Number:    c.Number,
		Company:   company,
		CardType:  c.CardType,
		OwnerType: c.OwnerType,
	}
}

func parseTossTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

package enkap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/enkapcm/payment-service/internal/config"
	"github.com/enkapcm/payment-service/internal/models"
)

const (
	// API hosts
	sandboxBaseURL = "https://api-staging.enkap.cm"
	prodBaseURL    = "https://api.enkap.cm"

	// API endpoints
	tokenEndpoint       = "/oauth/token"
	callbackURLEndpoint = "/api/callbackurl"
	orderCreateEndpoint = "/api/order/create"
	orderStatusEndpoint = "/api/order/status"
	pingEndpoint        = "/api/ping"

	requestTimeout = 30 * time.Second
)

// Client wraps authenticated access to the SmobilPay/enKap REST API
type Client struct {
	baseURL     string
	cfg         config.EnkapConfig
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	breaker     *gobreaker.CircuitBreaker
	log         *zap.Logger
}

// NewClient creates a new enKap API client. The sandbox host is selected
// when the provider is configured for the test environment, unless an
// explicit API base URL is set.
func NewClient(cfg config.EnkapConfig, log *zap.Logger) *Client {
	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = prodBaseURL
		if cfg.IsTest() {
			baseURL = sandboxBaseURL
		}
	}

	httpClient := &http.Client{Timeout: requestTimeout}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ConsumerKey,
		ClientSecret: cfg.ConsumerSecret,
		TokenURL:     baseURL + tokenEndpoint,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	return &Client{
		baseURL:     baseURL,
		cfg:         cfg,
		httpClient:  httpClient,
		tokenSource: creds.TokenSource(tokenCtx),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "enkap-api",
			Timeout: 60 * time.Second,
		}),
		log: log,
	}
}

// AcquireAccessToken performs the client-credentials exchange against
// the enKap token endpoint. The token source caches tokens until expiry.
func (c *Client) AcquireAccessToken(ctx context.Context) (*oauth2.Token, error) {
	token, err := c.tokenSource.Token()
	if err != nil {
		c.log.Error("failed to get enKap access token", zap.Error(err))
		return nil, &AuthError{Cause: err}
	}
	return token, nil
}

// Request performs an authenticated call against the enKap API.
// Payloads are serialized as a JSON body for POST and as query
// parameters for GET. Transport errors and non-2xx responses are
// reported as a CommunicationError carrying the underlying cause.
func (c *Client) Request(ctx context.Context, endpoint string, payload map[string]interface{}, method string) (map[string]interface{}, error) {
	token, err := c.AcquireAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var req *http.Request
	if strings.ToUpper(method) == http.MethodPost {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request payload: %w", err)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
		if err != nil {
			return nil, err
		}
		query := req.URL.Query()
		for key, value := range payload {
			query.Set(key, fmt.Sprint(value))
		}
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		var decoded map[string]interface{}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &decoded); err != nil {
				return nil, fmt.Errorf("decoding response: %w", err)
			}
		}
		return decoded, nil
	})
	if err != nil {
		c.log.Error("enKap API request failed",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return nil, &CommunicationError{Endpoint: endpoint, Cause: err}
	}

	resp, _ := result.(map[string]interface{})
	return resp, nil
}

// RegisterCallbackURL registers the notification callback URL with
// enKap. The provider is picky about trailing slashes, so the exact URL,
// the stripped variant and the appended variant are tried in order,
// stopping at the first accepted one. Registration failure must not
// block payment-page rendering, so this never returns an error.
func (c *Client) RegisterCallbackURL(ctx context.Context, callbackURL string) bool {
	trimmed := strings.TrimRight(callbackURL, "/")
	variants := []string{callbackURL, trimmed, trimmed + "/"}

	for _, variant := range variants {
		resp, err := c.Request(ctx, callbackURLEndpoint, map[string]interface{}{"callbackUrl": variant}, http.MethodPost)
		if err != nil {
			c.log.Warn("callback URL registration attempt failed",
				zap.String("url", variant),
				zap.Error(err))
			continue
		}
		if resp["status"] == "success" {
			c.log.Info("registered callback URL", zap.String("url", variant))
			return true
		}
	}

	// Sandbox accounts may carry a stale registration from an earlier
	// install; force it once
	if c.cfg.IsTest() {
		resp, err := c.Request(ctx, callbackURLEndpoint, map[string]interface{}{
			"callbackUrl": callbackURL,
			"force":       true,
		}, http.MethodPost)
		if err == nil && resp["status"] == "success" {
			c.log.Info("force-registered callback URL", zap.String("url", callbackURL))
			return true
		}
	}

	c.log.Error("callback URL registration failed", zap.String("url", callbackURL))
	return false
}

// PaymentOrder is the provider's answer to a created payment request
type PaymentOrder struct {
	PaymentID  string
	PaymentURL string
}

// CreatePaymentRequest creates a payment order with enKap and returns
// the hosted payment page URL the customer is redirected to.
func (c *Client) CreatePaymentRequest(ctx context.Context, tx *models.PaymentTransaction, callbackURL, returnURL string) (*PaymentOrder, error) {
	payload := map[string]interface{}{
		"amount":            int64(tx.Amount * 100), // provider expects minor units
		"currency":          tx.Currency,
		"merchantReference": tx.MerchantReference,
		"description":       tx.Description,
		"customerEmail":     tx.CustomerEmail,
		"customerName":      tx.CustomerName,
		"callbackUrl":       callbackURL,
		"returnUrl":         returnURL,
	}

	resp, err := c.Request(ctx, orderCreateEndpoint, payload, http.MethodPost)
	if err != nil {
		return nil, err
	}

	paymentURL, _ := resp["paymentUrl"].(string)
	if resp["status"] != "success" || paymentURL == "" {
		return nil, &CommunicationError{
			Endpoint: orderCreateEndpoint,
			Cause:    fmt.Errorf("provider rejected payment request"),
		}
	}

	paymentID, _ := resp["paymentId"].(string)
	return &PaymentOrder{PaymentID: paymentID, PaymentURL: paymentURL}, nil
}

// GetOrderStatus fetches the current provider-side status for a merchant
// reference and returns it in canonical notification form, so it can be
// fed through the same reconciliation path as inbound notifications.
func (c *Client) GetOrderStatus(ctx context.Context, merchantReference string) (*CanonicalNotification, error) {
	resp, err := c.Request(ctx, orderStatusEndpoint, map[string]interface{}{
		"merchantReference": merchantReference,
	}, http.MethodGet)
	if err != nil {
		return nil, err
	}

	return &CanonicalNotification{
		MerchantReference: merchantReference,
		Status:            stringField(resp, "paymentStatus"),
		PaymentID:         stringField(resp, "paymentId"),
		PaymentMethod:     stringField(resp, "paymentMethod"),
		PhoneNumber:       stringField(resp, "phoneNumber"),
		StatusMessage:     stringField(resp, "statusMessage"),
	}, nil
}

// Ping verifies API connectivity with an authenticated call
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Request(ctx, pingEndpoint, nil, http.MethodGet)
	return err
}

func stringField(resp map[string]interface{}, key string) string {
	value, _ := resp[key].(string)
	return value
}

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vaidashi/invoice-reconciler/pkg/apperrors"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
	"github.com/vaidashi/invoice-reconciler/pkg/retry"
)

// OrderCloudClient talks to the order-management system that holds the
// authoritative financial data for shipped orders
type OrderCloudClient struct {
	baseURL     string
	username    string
	password    string
	token       string
	httpClient  *http.Client
	logger      logger.Logger
	retryConfig *retry.Config
}

// OrderTotals is the totals section of an order response
type OrderTotals struct {
	Tax        decimal.Decimal `json:"Tax"`
	GrandTotal decimal.Decimal `json:"GrandTotal"`
}

// OrderItem is one line of an order response
type OrderItem struct {
	SKU       string          `json:"ProductIDOriginal"`
	LineTotal decimal.Decimal `json:"LineTotal"`
}

// OrderResponse is the authoritative order record
type OrderResponse struct {
	TotalInfo  OrderTotals `json:"TotalInfo"`
	OrderItems []OrderItem `json:"OrderItems"`
}

type tokenRequest struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// NewOrderCloudClient creates a new OrderCloudClient
func NewOrderCloudClient(baseURL, username, password string, logger logger.Logger) *OrderCloudClient {
	return &OrderCloudClient{
		baseURL:  baseURL,
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
		retryConfig: &retry.Config{
			MaxAttempts: 3,
			Backoff:     retry.NewDefaultExponentialBackoff(),
			Logger:      logger,
		},
	}
}

// Authenticate fetches the bearer token used for the rest of the run. This
// is a run-level boundary, so it retries on transient failures.
func (c *OrderCloudClient) Authenticate(ctx context.Context) error {
	url := fmt.Sprintf("%s/token", c.baseURL)

	fetchToken := func() error {
		reqBody, err := json.Marshal(tokenRequest{Username: c.username, Password: c.password})

		if err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to marshal token request: %v", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))

		if err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to create request: %v", err))
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)

		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return apperrors.NewTimeoutError("token request timed out")
			}
			return apperrors.NewTransportError(fmt.Sprintf("failed to send token request: %v", err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)

		if err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to read response body: %v", err))
		}

		if resp.StatusCode >= 400 {
			if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode >= http.StatusInternalServerError {
				return apperrors.NewTemporaryError(fmt.Sprintf("token endpoint error: %d", resp.StatusCode))
			}
			return apperrors.NewRejectedError(fmt.Sprintf("token request rejected: %d", resp.StatusCode))
		}

		var token tokenResponse

		if err := json.Unmarshal(body, &token); err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to parse token response: %v", err))
		}

		c.token = token.AccessToken
		return nil
	}

	err := retry.Do(ctx, fetchToken, c.retryConfig)

	if err != nil {
		c.logger.Error("Failed to authenticate with order-management service", "error", err)
		return err
	}

	c.logger.Info("Authenticated with order-management service")
	return nil
}

// GetOrder fetches the authoritative financial record for one order. It is
// never retried: a failure is terminal for that order within this run.
func (c *OrderCloudClient) GetOrder(ctx context.Context, externalOrderID string) (*OrderResponse, error) {
	url := fmt.Sprintf("%s/Orders/%s", c.baseURL, externalOrderID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)

	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Sprintf("failed to create request: %v", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)

	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, apperrors.NewTimeoutError("order request timed out")
		}
		return nil, apperrors.NewTransportError(fmt.Sprintf("failed to send order request: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)

	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Sprintf("failed to read response body: %v", err))
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("order %s not found", externalOrderID))
	}

	if resp.StatusCode >= 400 {
		return nil, apperrors.NewRejectedError(
			fmt.Sprintf("order-management service returned error: %d", resp.StatusCode))
	}

	response := &OrderResponse{}

	if err := json.Unmarshal(body, response); err != nil {
		return nil, apperrors.NewInternalError(fmt.Sprintf("failed to parse order response: %v", err))
	}

	return response, nil
}

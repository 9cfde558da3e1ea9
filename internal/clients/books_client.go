package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vaidashi/invoice-reconciler/pkg/apperrors"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
	"github.com/vaidashi/invoice-reconciler/pkg/retry"
)

// Ref is a reference to a named accounting object
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// Address is a postal address on an invoice
type Address struct {
	Line1                  string `json:"Line1,omitempty"`
	City                   string `json:"City,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	Country                string `json:"Country,omitempty"`
	PostalCode             string `json:"PostalCode,omitempty"`
}

// EmailAddress is the billing email on an invoice
type EmailAddress struct {
	Address string `json:"Address"`
}

// SalesItemLineDetail carries the pricing detail of one invoice line
type SalesItemLineDetail struct {
	ServiceDate string          `json:"ServiceDate,omitempty"`
	UnitPrice   decimal.Decimal `json:"UnitPrice"`
	Qty         int             `json:"Qty"`
	ItemRef     Ref             `json:"ItemRef"`
	ClassRef    Ref             `json:"ClassRef"`
}

// InvoiceLine is one line of an invoice
type InvoiceLine struct {
	Amount              decimal.Decimal     `json:"Amount"`
	DetailType          string              `json:"DetailType"`
	Description         string              `json:"Description,omitempty"`
	SalesItemLineDetail SalesItemLineDetail `json:"SalesItemLineDetail"`
}

// Invoice is the accounting service's invoice object. DocNumber carries the
// partner-prefixed order id, which is what makes re-runs idempotent.
type Invoice struct {
	ID            string          `json:"Id,omitempty"`
	SyncToken     string          `json:"SyncToken,omitempty"`
	DocNumber     string          `json:"DocNumber"`
	TxnDate       string          `json:"TxnDate,omitempty"`
	ShipDate      string          `json:"ShipDate,omitempty"`
	TrackingNum   string          `json:"TrackingNum,omitempty"`
	TotalAmt      decimal.Decimal `json:"TotalAmt,omitempty"`
	Line          []InvoiceLine   `json:"Line"`
	CustomerRef   Ref             `json:"CustomerRef"`
	SalesTermRef  Ref             `json:"SalesTermRef,omitempty"`
	ShipMethodRef Ref             `json:"ShipMethodRef,omitempty"`
	ShipAddr      *Address        `json:"ShipAddr,omitempty"`
	BillEmail     *EmailAddress   `json:"BillEmail,omitempty"`
}

type namedEntity struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

type authResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// BooksClient talks to the accounting service
type BooksClient struct {
	baseURL      string
	authURL      string
	clientID     string
	clientSecret string
	realmID      string
	accessToken  string
	httpClient   *http.Client
	logger       logger.Logger
	retryConfig  *retry.Config
}

// NewBooksClient creates a new BooksClient
func NewBooksClient(baseURL, authURL, clientID, clientSecret, realmID string, logger logger.Logger) *BooksClient {
	return &BooksClient{
		baseURL:      baseURL,
		authURL:      authURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		realmID:      realmID,
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

// Authenticate exchanges the stored refresh token for an access token and
// returns the rotated refresh token so the caller can persist it. Run-level
// boundary, so transient failures retry.
func (c *BooksClient) Authenticate(ctx context.Context, refreshToken string) (string, error) {
	var rotated string

	refresh := func() error {
		form := url.Values{}
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", refreshToken)
		form.Set("client_id", c.clientID)
		form.Set("client_secret", c.clientSecret)

		req, err := http.NewRequestWithContext(
			ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))

		if err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to create auth request: %v", err))
		}

		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)

		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return apperrors.NewTimeoutError("auth request timed out")
			}
			return apperrors.NewTransportError(fmt.Sprintf("failed to send auth request: %v", err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)

		if err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to read auth response: %v", err))
		}

		if resp.StatusCode >= 500 {
			return apperrors.NewTemporaryError(fmt.Sprintf("auth endpoint error: %d", resp.StatusCode))
		}

		if resp.StatusCode >= 400 {
			return apperrors.NewRejectedError(fmt.Sprintf("auth request rejected: %d", resp.StatusCode))
		}

		var auth authResponse

		if err := json.Unmarshal(body, &auth); err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to parse auth response: %v", err))
		}

		c.accessToken = auth.AccessToken
		rotated = auth.RefreshToken
		return nil
	}

	err := retry.Do(ctx, refresh, c.retryConfig)

	if err != nil {
		c.logger.Error("Failed to authenticate with accounting service", "error", err)
		return "", err
	}

	c.logger.Info("Authenticated with accounting service")
	return rotated, nil
}

// do sends one request and classifies the failure modes into the error
// taxonomy. Per-order calls go through here exactly once, no retries.
func (c *BooksClient) do(ctx context.Context, method, requestURL string, payload interface{}, out interface{}) error {
	var reqBody io.Reader

	if payload != nil {
		encoded, err := json.Marshal(payload)

		if err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to marshal request: %v", err))
		}

		reqBody = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reqBody)

	if err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to create request: %v", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)

	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return apperrors.NewTimeoutError("accounting request timed out")
		}
		return apperrors.NewTransportError(fmt.Sprintf("failed to send accounting request: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)

	if err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to read response body: %v", err))
	}

	if resp.StatusCode == http.StatusNotFound {
		return apperrors.NewNotFoundError("accounting object not found")
	}

	if resp.StatusCode >= 400 {
		return apperrors.NewRejectedError(
			fmt.Sprintf("accounting service returned error %d: %s", resp.StatusCode, string(body)))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to parse response: %v", err))
		}
	}

	return nil
}

func (c *BooksClient) getRef(ctx context.Context, entity, id string) (Ref, error) {
	requestURL := fmt.Sprintf("%s/v3/company/%s/%s/%s", c.baseURL, c.realmID, entity, id)

	var wrapper map[string]namedEntity

	if err := c.do(ctx, http.MethodGet, requestURL, nil, &wrapper); err != nil {
		return Ref{}, err
	}

	for _, e := range wrapper {
		return Ref{Value: e.ID, Name: e.Name}, nil
	}

	return Ref{}, apperrors.NewInternalError(fmt.Sprintf("empty %s response for id %s", entity, id))
}

// GetItemRef resolves a catalog item reference
func (c *BooksClient) GetItemRef(ctx context.Context, id string) (Ref, error) {
	return c.getRef(ctx, "item", id)
}

// GetClassRef resolves a class reference
func (c *BooksClient) GetClassRef(ctx context.Context, id string) (Ref, error) {
	return c.getRef(ctx, "class", id)
}

// GetCustomerRef resolves a customer reference
func (c *BooksClient) GetCustomerRef(ctx context.Context, id string) (Ref, error) {
	return c.getRef(ctx, "customer", id)
}

// GetTermRef resolves a payment term reference
func (c *BooksClient) GetTermRef(ctx context.Context, id string) (Ref, error) {
	return c.getRef(ctx, "term", id)
}

type invoiceQueryResponse struct {
	QueryResponse struct {
		Invoice []Invoice `json:"Invoice"`
	} `json:"QueryResponse"`
}

type invoiceWrapper struct {
	Invoice Invoice `json:"Invoice"`
}

// FindInvoice looks an invoice up by DocNumber. A nil invoice with a nil
// error means none exists. Single quotes in the doc number are doubled so
// the query stays well formed.
func (c *BooksClient) FindInvoice(ctx context.Context, docNumber string) (*Invoice, error) {
	escaped := strings.ReplaceAll(docNumber, "'", "''")
	query := fmt.Sprintf("SELECT * FROM Invoice WHERE DocNumber = '%s'", escaped)
	requestURL := fmt.Sprintf("%s/v3/company/%s/query?query=%s",
		c.baseURL, c.realmID, url.QueryEscape(query))

	var result invoiceQueryResponse

	if err := c.do(ctx, http.MethodGet, requestURL, nil, &result); err != nil {
		return nil, err
	}

	if len(result.QueryResponse.Invoice) == 0 {
		return nil, nil
	}

	return &result.QueryResponse.Invoice[0], nil
}

// CreateInvoice submits a new invoice
func (c *BooksClient) CreateInvoice(ctx context.Context, invoice *Invoice) (*Invoice, error) {
	requestURL := fmt.Sprintf("%s/v3/company/%s/invoice", c.baseURL, c.realmID)

	var result invoiceWrapper

	if err := c.do(ctx, http.MethodPost, requestURL, invoice, &result); err != nil {
		return nil, err
	}

	return &result.Invoice, nil
}

// DeleteInvoice removes an invoice, used as compensation when a downstream
// step fails after creation succeeded
func (c *BooksClient) DeleteInvoice(ctx context.Context, invoice *Invoice) error {
	requestURL := fmt.Sprintf("%s/v3/company/%s/invoice?operation=delete", c.baseURL, c.realmID)

	payload := map[string]string{
		"Id":        invoice.ID,
		"SyncToken": invoice.SyncToken,
	}

	return c.do(ctx, http.MethodPost, requestURL, payload, nil)
}

package postfinance

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application"
	"github.com/sweenu/pretix-postfinance-sub000/internal/config"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
)

// Client talks to the PostFinance Checkout API. Every request carries a
// short-lived HS256 JWT signed with the application user's auth key.
type Client struct {
	baseURL    string
	spaceID    int64
	userID     int64
	authKey    []byte
	httpClient *http.Client
}

func NewClient(cfg config.PostFinanceConfig) (*Client, error) {
	key, err := base64.StdEncoding.DecodeString(cfg.AuthKey)
	if err != nil {
		return nil, fmt.Errorf("decode auth key: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		spaceID:    cfg.SpaceID,
		userID:     cfg.UserID,
		authKey:    key,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

var _ application.GatewayClient = (*Client)(nil)

// CreateTransaction registers a new transaction in the configured space.
func (c *Client) CreateTransaction(ctx context.Context, req application.CreateTransactionRequest) (*application.Transaction, error) {
	dto, err := c.toCreateDTO(req)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/transaction/create?spaceId=%d", c.spaceID)
	resp, err := sendRequest[transactionCreateDTO, transactionDTO](c, ctx, http.MethodPost, path, dto)
	if err != nil {
		return nil, err
	}
	return c.toTransaction(resp)
}

// GetTransaction re-reads a transaction.
func (c *Client) GetTransaction(ctx context.Context, transactionID int64) (*application.Transaction, error) {
	path := fmt.Sprintf("/transaction/read?spaceId=%d&id=%d", c.spaceID, transactionID)
	resp, err := sendRequest[struct{}, transactionDTO](c, ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.toTransaction(resp)
}

// ChargeToken creates a transaction against a stored token and processes it
// without user interaction.
func (c *Client) ChargeToken(ctx context.Context, req application.ChargeTokenRequest) (*application.Transaction, error) {
	tokenID, err := strconv.ParseInt(req.TokenID, 10, 64)
	if err != nil {
		return nil, &application.GatewayError{
			Code:     "invalid_token",
			Message:  fmt.Sprintf("token id %q is not numeric", req.TokenID),
			Category: application.CategoryFatal,
		}
	}

	amountMinor, err := domain.ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	dto := &transactionCreateDTO{
		Currency: req.Currency,
		LineItems: []lineItemDTO{{
			UniqueID:           req.MerchantReference,
			Name:               req.MerchantReference,
			Type:               "PRODUCT",
			Quantity:           1,
			AmountIncludingTax: amountMinor,
		}},
		CustomerEmailAddress:    req.CustomerEmail,
		MerchantReference:       req.MerchantReference,
		Token:                   tokenID,
		CustomersPresence:       "NOT_PRESENT",
		AutoConfirmationEnabled: true,
	}

	path := fmt.Sprintf("/transaction/create?spaceId=%d", c.spaceID)
	created, err := sendRequest[transactionCreateDTO, transactionDTO](c, ctx, http.MethodPost, path, dto)
	if err != nil {
		return nil, err
	}

	path = fmt.Sprintf("/transaction/processWithoutUserInteraction?spaceId=%d&id=%d", c.spaceID, created.ID)
	processed, err := sendRequest[struct{}, transactionDTO](c, ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}
	return c.toTransaction(processed)
}

// CompleteTransaction captures a deferred-completion transaction.
func (c *Client) CompleteTransaction(ctx context.Context, transactionID int64) (*application.Transaction, error) {
	path := fmt.Sprintf("/transaction-completion/completeOnline?spaceId=%d&id=%d", c.spaceID, transactionID)
	if _, err := sendRequest[struct{}, json.RawMessage](c, ctx, http.MethodPost, path, nil); err != nil {
		return nil, err
	}
	return c.GetTransaction(ctx, transactionID)
}

// VoidTransaction cancels an authorized but uncaptured transaction.
func (c *Client) VoidTransaction(ctx context.Context, transactionID int64) (*application.Transaction, error) {
	path := fmt.Sprintf("/transaction-void/voidOnline?spaceId=%d&id=%d", c.spaceID, transactionID)
	if _, err := sendRequest[struct{}, json.RawMessage](c, ctx, http.MethodPost, path, nil); err != nil {
		return nil, err
	}
	return c.GetTransaction(ctx, transactionID)
}

// RefundTransaction issues a merchant-initiated refund. The external id
// makes the call idempotent on the gateway side.
func (c *Client) RefundTransaction(ctx context.Context, req application.RefundRequest) (*application.RefundResult, error) {
	amountMinor, err := domain.ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	dto := &refundCreateDTO{
		Transaction: req.TransactionID,
		Amount:      amountMinor,
		ExternalID:  req.ExternalID,
		Type:        "MERCHANT_INITIATED_ONLINE",
	}

	path := fmt.Sprintf("/refund/refund?spaceId=%d", c.spaceID)
	resp, err := sendRequest[refundCreateDTO, refundDTO](c, ctx, http.MethodPost, path, dto)
	if err != nil {
		return nil, err
	}

	amount, err := domain.FromMinorUnits(resp.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	return &application.RefundResult{
		ID:         resp.ID,
		State:      resp.State,
		Amount:     amount,
		ExternalID: resp.ExternalID,
	}, nil
}

// PaymentPageURL fetches the hosted payment page for a transaction.
func (c *Client) PaymentPageURL(ctx context.Context, transactionID int64) (string, error) {
	path := fmt.Sprintf("/transaction-payment-page/payment-page-url?spaceId=%d&id=%d", c.spaceID, transactionID)
	resp, err := sendRequestRaw(c, ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(string(resp)), `"`), nil
}

// GetSpace reads the configured space, which doubles as a connection test.
func (c *Client) GetSpace(ctx context.Context) error {
	path := fmt.Sprintf("/space/read?spaceId=%d&id=%d", c.spaceID, c.spaceID)
	space, err := sendRequest[struct{}, spaceDTO](c, ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if space.State != "ACTIVE" {
		return &application.GatewayError{
			Code:     "invalid_space",
			Message:  fmt.Sprintf("space %d is %s", c.spaceID, space.State),
			Category: application.CategoryFatal,
		}
	}
	return nil
}

// authToken builds the per-request JWT the gateway expects: HS256 over the
// request path (including query) and method, header ver 1.
func (c *Client) authToken(path, method string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":           strconv.FormatInt(c.userID, 10),
		"iat":           time.Now().Unix(),
		"requestPath":   path,
		"requestMethod": method,
	})
	token.Header["ver"] = 1
	return token.SignedString(c.authKey)
}

func sendRequest[Req any, Resp any](c *Client, ctx context.Context, method, path string, reqBody *Req) (*Resp, error) {
	body, err := sendRequestRaw(c, ctx, method, path, toJSONReader(reqBody))
	if err != nil {
		return nil, err
	}

	var resp Resp
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}
	return &resp, nil
}

func sendRequestRaw(c *Client, ctx context.Context, method, path string, bodyReader io.Reader) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	auth, err := c.authToken(path, method)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+auth)
	httpReq.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiErrorDTO
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" && apiErr.Type == "" {
			return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
		}
		message := apiErr.Message
		if message == "" {
			message = apiErr.DefaultMessage
		}
		return nil, &application.GatewayError{
			Code:       strings.ToLower(apiErr.Type),
			Message:    message,
			StatusCode: resp.StatusCode,
		}
	}

	return body, nil
}

func toJSONReader[Req any](reqBody *Req) io.Reader {
	if reqBody == nil {
		return nil
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil
	}
	return bytes.NewReader(data)
}

func (c *Client) toCreateDTO(req application.CreateTransactionRequest) (*transactionCreateDTO, error) {
	items := make([]lineItemDTO, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		amountMinor, err := domain.ToMinorUnits(item.Amount, req.Currency)
		if err != nil {
			return nil, err
		}
		items = append(items, lineItemDTO{
			UniqueID:           item.UniqueID,
			Name:               item.Name,
			Type:               item.Type,
			Quantity:           item.Quantity,
			AmountIncludingTax: amountMinor,
		})
	}

	return &transactionCreateDTO{
		Currency:              req.Currency,
		LineItems:             items,
		CustomerEmailAddress:  req.CustomerEmail,
		MerchantReference:     req.MerchantReference,
		SuccessURL:            req.SuccessURL,
		FailedURL:             req.FailedURL,
		TokenizationMode:      req.TokenizationMode,
		CompletionBehavior:    req.CompletionBehavior,
		AllowedPaymentMethods: req.AllowedPaymentMethods,
	}, nil
}

func (c *Client) toTransaction(dto *transactionDTO) (*application.Transaction, error) {
	tx := &application.Transaction{
		ID:                dto.ID,
		State:             dto.State,
		Currency:          dto.Currency,
		MerchantReference: dto.MerchantReference,
		FailureReason:     dto.UserFailureMessage,
	}

	if dto.Currency != "" {
		authorized, err := domain.FromMinorUnits(dto.AuthorizationAmount, dto.Currency)
		if err != nil {
			return nil, err
		}
		completed, err := domain.FromMinorUnits(dto.CompletedAmount, dto.Currency)
		if err != nil {
			return nil, err
		}
		tx.AuthorizedAmount = authorized
		tx.CompletedAmount = completed
	} else {
		tx.AuthorizedAmount = decimal.Zero
		tx.CompletedAmount = decimal.Zero
	}

	if dto.Token != nil {
		tokenID := strconv.FormatInt(dto.Token.ID, 10)
		tx.TokenID = &tokenID
	}
	if tx.FailureReason == "" && dto.FailureReason != nil {
		if desc, ok := dto.FailureReason.Description["en-US"]; ok {
			tx.FailureReason = desc
		}
	}
	return tx, nil
}

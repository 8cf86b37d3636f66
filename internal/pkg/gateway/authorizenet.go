package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
)

const (
	SandboxEndpoint    = "https://apitest.authorize.net/xml/v1/request.api"
	ProductionEndpoint = "https://api.authorize.net/xml/v1/request.api"

	sandboxCardNumber = "4111111111111111"
	sandboxCardExpiry = "2038-12"
	acceptDescriptor  = "COMMON.ACCEPT.INAPP.PAYMENT"

	// DuplicateWindowSeconds must outlast every retry the Adapter makes for
	// one operation.
	DuplicateWindowSeconds = 120
)

// Authorize.Net rejects requests whose JSON members are not in schema order,
// so struct field order below is significant.

type anetMerchantAuth struct {
	Name           string `json:"name"`
	TransactionKey string `json:"transactionKey"`
}

type anetCreditCard struct {
	CardNumber     string `json:"cardNumber"`
	ExpirationDate string `json:"expirationDate"`
}

type anetOpaqueData struct {
	DataDescriptor string `json:"dataDescriptor"`
	DataValue      string `json:"dataValue"`
}

type anetPayment struct {
	CreditCard *anetCreditCard `json:"creditCard,omitempty"`
	OpaqueData *anetOpaqueData `json:"opaqueData,omitempty"`
}

type anetOrder struct {
	InvoiceNumber string `json:"invoiceNumber,omitempty"`
	Description   string `json:"description,omitempty"`
}

type anetCustomer struct {
	ID string `json:"id,omitempty"`
}

type anetSetting struct {
	SettingName  string `json:"settingName"`
	SettingValue string `json:"settingValue"`
}

type anetTransactionSettings struct {
	Setting anetSetting `json:"setting"`
}

type anetTransactionRequest struct {
	TransactionType     string                   `json:"transactionType"`
	Amount              string                   `json:"amount,omitempty"`
	Payment             *anetPayment             `json:"payment,omitempty"`
	RefTransID          string                   `json:"refTransId,omitempty"`
	Order               *anetOrder               `json:"order,omitempty"`
	Customer            *anetCustomer            `json:"customer,omitempty"`
	TransactionSettings *anetTransactionSettings `json:"transactionSettings,omitempty"`
}

type anetCreateTransaction struct {
	MerchantAuthentication anetMerchantAuth       `json:"merchantAuthentication"`
	RefID                  string                 `json:"refId,omitempty"`
	TransactionRequest     anetTransactionRequest `json:"transactionRequest"`
}

type anetEnvelope struct {
	CreateTransactionRequest anetCreateTransaction `json:"createTransactionRequest"`
}

type anetMessage struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

type anetTxnMessage struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type anetTxnError struct {
	ErrorCode string `json:"errorCode"`
	ErrorText string `json:"errorText"`
}

type anetResponse struct {
	TransactionResponse *struct {
		ResponseCode  string           `json:"responseCode"`
		TransID       string           `json:"transId"`
		AccountNumber string           `json:"accountNumber"`
		Messages      []anetTxnMessage `json:"messages"`
		Errors        []anetTxnError   `json:"errors"`
	} `json:"transactionResponse"`
	RefID    string `json:"refId"`
	Messages struct {
		ResultCode string        `json:"resultCode"`
		Message    []anetMessage `json:"message"`
	} `json:"messages"`
}

// AuthorizeNetClient talks to the Authorize.Net JSON API. In sandbox mode an
// authorization without a payment token uses the public test card.
type AuthorizeNetClient struct {
	httpClient     *http.Client
	endpoint       string
	apiLogin       string
	transactionKey string
	sandbox        bool
}

func NewAuthorizeNetClient(httpClient *http.Client, endpoint, apiLogin, transactionKey string, sandbox bool) *AuthorizeNetClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AuthorizeNetClient{
		httpClient:     httpClient,
		endpoint:       endpoint,
		apiLogin:       apiLogin,
		transactionKey: transactionKey,
		sandbox:        sandbox,
	}
}

func (c *AuthorizeNetClient) Name() string {
	if c.sandbox {
		return "authorize.net-sandbox"
	}
	return "authorize.net"
}

func (c *AuthorizeNetClient) Authorize(ctx context.Context, req Request) (*Result, error) {
	payment, err := c.paymentFor(req)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, OpAuthorize, req, anetTransactionRequest{
		TransactionType:     "authOnlyTransaction",
		Amount:              formatAmount(req.AmountCents),
		Payment:             payment,
		Order:               orderFor(req),
		Customer:            &anetCustomer{ID: truncate(req.CustomerID, 20)},
		TransactionSettings: duplicateWindow(),
	})
}

func (c *AuthorizeNetClient) Capture(ctx context.Context, req Request) (*Result, error) {
	return c.send(ctx, OpCapture, req, anetTransactionRequest{
		TransactionType:     "priorAuthCaptureTransaction",
		Amount:              formatAmount(req.AmountCents),
		RefTransID:          req.ReferenceTransactionID,
		Order:               orderFor(req),
		TransactionSettings: duplicateWindow(),
	})
}

func (c *AuthorizeNetClient) Void(ctx context.Context, req Request) (*Result, error) {
	return c.send(ctx, OpVoid, req, anetTransactionRequest{
		TransactionType: "voidTransaction",
		RefTransID:      req.ReferenceTransactionID,
	})
}

// Refund needs the last four digits of the captured card; the expiry is
// masked as Authorize.Net allows for refunds of settled transactions.
func (c *AuthorizeNetClient) Refund(ctx context.Context, req Request) (*Result, error) {
	last4 := lastFour(req.AccountNumber)
	if last4 == "" {
		return nil, Fatal(OpRefund, "MISSING_ACCOUNT", "refund requires the captured account number", nil)
	}
	return c.send(ctx, OpRefund, req, anetTransactionRequest{
		TransactionType:     "refundTransaction",
		Amount:              formatAmount(req.AmountCents),
		Payment:             &anetPayment{CreditCard: &anetCreditCard{CardNumber: last4, ExpirationDate: "XXXX"}},
		RefTransID:          req.ReferenceTransactionID,
		Order:               orderFor(req),
		TransactionSettings: duplicateWindow(),
	})
}

func (c *AuthorizeNetClient) paymentFor(req Request) (*anetPayment, error) {
	if req.PaymentToken != "" {
		return &anetPayment{OpaqueData: &anetOpaqueData{DataDescriptor: acceptDescriptor, DataValue: req.PaymentToken}}, nil
	}
	if c.sandbox {
		return &anetPayment{CreditCard: &anetCreditCard{CardNumber: sandboxCardNumber, ExpirationDate: sandboxCardExpiry}}, nil
	}
	return nil, Fatal(OpAuthorize, "MISSING_PAYMENT", "a payment token is required", nil)
}

func (c *AuthorizeNetClient) send(ctx context.Context, op Operation, req Request, txn anetTransactionRequest) (*Result, error) {
	body, err := json.Marshal(anetEnvelope{CreateTransactionRequest: anetCreateTransaction{
		MerchantAuthentication: anetMerchantAuth{Name: c.apiLogin, TransactionKey: c.transactionKey},
		RefID:                  refID(req.CorrelationID),
		TransactionRequest:     txn,
	}})
	if err != nil {
		return nil, Fatal(op, "ENCODE", "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, Fatal(op, "ENCODE", "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.CorrelationID != "" {
		httpReq.Header.Set("X-Correlation-ID", req.CorrelationID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, Retryable(op, "READ", "failed to read gateway response", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, Retryable(op, fmt.Sprintf("HTTP_%d", resp.StatusCode), http.StatusText(resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Fatal(op, fmt.Sprintf("HTTP_%d", resp.StatusCode), http.StatusText(resp.StatusCode), nil)
	}

	// the API prefixes its JSON with a UTF-8 byte order mark
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	var parsed anetResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, Retryable(op, "DECODE", "unparsable gateway response", err)
	}
	return interpret(op, &parsed)
}

func interpret(op Operation, resp *anetResponse) (*Result, error) {
	tr := resp.TransactionResponse

	if tr != nil && tr.ResponseCode != "" {
		switch tr.ResponseCode {
		case "1":
			msg := ""
			if len(tr.Messages) > 0 {
				msg = tr.Messages[0].Description
			}
			return &Result{
				Success:       true,
				TransactionID: tr.TransID,
				Message:       msg,
				ResponseCode:  tr.ResponseCode,
				AccountNumber: tr.AccountNumber,
			}, nil
		case "2", "3", "4":
			code, text := tr.ResponseCode, "transaction declined"
			if len(tr.Errors) > 0 {
				code, text = tr.Errors[0].ErrorCode, tr.Errors[0].ErrorText
			}
			return nil, Declined(op, code, text)
		}
	}

	if strings.EqualFold(resp.Messages.ResultCode, "Ok") {
		return nil, Retryable(op, "NO_TRANSACTION_RESPONSE", "no transaction response", nil)
	}

	code, text := "", "Authorize.Net error"
	if len(resp.Messages.Message) > 0 {
		code, text = resp.Messages.Message[0].Code, resp.Messages.Message[0].Text
	}
	switch code {
	case "E00001", "E00053":
		return nil, Retryable(op, code, text, nil)
	default:
		return nil, Fatal(op, code, text, nil)
	}
}

func classifyTransportError(op Operation, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Retryable(op, "TIMEOUT", "gateway call timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Retryable(op, "TIMEOUT", "gateway call timed out", err)
	}
	return Retryable(op, "TRANSPORT", "gateway unreachable", err)
}

// orderFor builds the invoice Authorize.Net matches duplicates on. It stays
// the same across retries and across the operations of one order.
func orderFor(req Request) *anetOrder {
	invoice := req.ExternalOrderID
	if invoice == "" {
		invoice = strings.ReplaceAll(req.OrderID, "-", "")
	}
	if invoice == "" {
		return nil
	}
	order := &anetOrder{InvoiceNumber: truncate(invoice, 20)}
	if req.OrderID != "" {
		order.Description = "order " + req.OrderID
	}
	return order
}

func duplicateWindow() *anetTransactionSettings {
	return &anetTransactionSettings{Setting: anetSetting{
		SettingName:  "duplicateWindow",
		SettingValue: strconv.Itoa(DuplicateWindowSeconds),
	}}
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// refID derives the 20 character merchant reference from the correlation id.
func refID(correlationID string) string {
	return truncate(strings.ReplaceAll(correlationID, "-", ""), 20)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func lastFour(account string) string {
	digits := make([]byte, 0, len(account))
	for i := 0; i < len(account); i++ {
		if account[i] >= '0' && account[i] <= '9' {
			digits = append(digits, account[i])
		}
	}
	if len(digits) < 4 {
		return ""
	}
	return string(digits[len(digits)-4:])
}

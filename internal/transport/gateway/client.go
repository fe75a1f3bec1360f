package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/pkg/errors"
)

const (
	RouteCreateIntent   = "/v1/payment_intents"
	RouteRetrieveIntent = "/v1/payment_intents/%s"
)

// Константы минимального и максимально значения в заголовке Retry-After.
const (
	minRetryAfter     = 1
	maxRetryAfter     = 120
	defaultRetryAfter = 60 * time.Second
)

const (
	defaultMaxRetries  = 3
	defaultInitialWait = 200 * time.Millisecond
	defaultTimeout     = 10 * time.Second
)

const (
	OperationCreateIntent   = "create_intent"
	OperationRetrieveIntent = "retrieve_intent"
)

type createIntentRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

type intentResponse struct {
	ID               string              `json:"id"`
	ClientSecret     string              `json:"client_secret"`
	Status           domain.IntentStatus `json:"status"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error,omitempty"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPClient клиент платежного шлюза поверх HTTP JSON API.
type HTTPClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	metrics    MetricsRecorder
	maxRetries uint64
	retryWait  time.Duration
}

type Option func(*HTTPClient)

func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

func WithMetrics(m MetricsRecorder) Option {
	return func(h *HTTPClient) {
		h.metrics = m
	}
}

// WithRetries задает число повторов и начальную паузу экспоненциального backoff.
func WithRetries(maxRetries uint64, initialWait time.Duration) Option {
	return func(h *HTTPClient) {
		h.maxRetries = maxRetries
		h.retryWait = initialWait
	}
}

func New(baseURL, secretKey string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    baseURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		metrics:    nopMetrics{},
		maxRetries: defaultMaxRetries,
		retryWait:  defaultInitialWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateIntent создает платежное намерение на сумму args.Amount. Повтор запроса с тем же
// args.IdempotencyKey возвращает ранее созданное намерение.
func (c *HTTPClient) CreateIntent(ctx context.Context, args domain.CreateIntentArgs) (*domain.PaymentIntent, error) {
	body, marshalErr := json.Marshal(createIntentRequest{
		Amount:   domain.ToMinorUnits(args.Amount),
		Currency: args.Currency,
		Metadata: map[string]string{
			"order_id":     strconv.FormatInt(args.OrderID, 10),
			"order_number": args.OrderNumber,
		},
	})
	if marshalErr != nil {
		return nil, errors.Wrap(marshalErr, "marshal create intent request")
	}

	return c.call(ctx, OperationCreateIntent, http.MethodPost, RouteCreateIntent, body, args.IdempotencyKey)
}

func (c *HTTPClient) RetrieveIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	path := fmt.Sprintf(RouteRetrieveIntent, url.PathEscape(intentID))
	return c.call(ctx, OperationRetrieveIntent, http.MethodGet, path, nil, "")
}

// call выполняет запрос с повторами. Повторяются сетевые ошибки и ответы 5xx, остальные ошибки возвращаются сразу.
// Все ошибки, кроме отмены контекста, оборачивают domain.ErrGateway.
func (c *HTTPClient) call(
	ctx context.Context,
	operation, method, path string,
	body []byte,
	idempotencyKey string,
) (*domain.PaymentIntent, error) {
	started := time.Now()

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.retryWait
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, c.maxRetries), ctx)

	intent, err := backoff.RetryWithData(func() (*domain.PaymentIntent, error) {
		res, doErr := c.do(ctx, method, path, body, idempotencyKey)
		if doErr == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(doErr)
		}
		var statusErr *StatusCodeError
		if stderrors.As(doErr, &statusErr) && !statusErr.Temporary() {
			return nil, backoff.Permanent(doErr)
		}
		var tooManyErr *TooManyRequestError
		if stderrors.As(doErr, &tooManyErr) {
			return nil, backoff.Permanent(doErr)
		}
		// 5xx и сетевые ошибки повторяются.
		return nil, doErr
	}, policy)

	c.metrics.GatewayRequest(operation, started, err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !stderrors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		if !stderrors.Is(err, domain.ErrGateway) {
			err = fmt.Errorf("%w: %w", domain.ErrGateway, err)
		}
		return nil, errors.Wrap(err, operation)
	}
	return intent, nil
}

//nolint:nonamedreturns
func (c *HTTPClient) do(
	ctx context.Context,
	method, path string,
	body []byte,
	idempotencyKey string,
) (intent *domain.PaymentIntent, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, reqErr := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if reqErr != nil {
		return nil, backoff.Permanent(errors.Wrap(reqErr, "create request"))
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, errors.Wrap(doErr, "do request")
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			err = stderrors.Join(err, closeErr)
		}
	}()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, errors.Wrap(readErr, "read response")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, NewTooManyRequestError(parseRetryAfter(resp.Header.Get("Retry-After")))
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.Unmarshal(respBody, &errResp)
		return nil, NewStatusCodeError(resp.StatusCode, errResp.Error.Message)
	}

	var parsed intentResponse
	if jsonErr := json.Unmarshal(respBody, &parsed); jsonErr != nil {
		return nil, backoff.Permanent(errors.Wrap(jsonErr, "parse response"))
	}
	if parsed.ID == "" || parsed.Status == "" {
		return nil, backoff.Permanent(errors.New("parse response: intent id or status is missing"))
	}

	intent = &domain.PaymentIntent{
		ID:           parsed.ID,
		ClientSecret: parsed.ClientSecret,
		Status:       parsed.Status,
	}
	if parsed.LastPaymentError != nil {
		intent.LastError = parsed.LastPaymentError.Message
	}
	return intent, nil
}

// parseRetryAfter читает заголовок Retry-After в секундах. Значения вне диапазона заменяются на 60 секунд.
func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < minRetryAfter || seconds > maxRetryAfter {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}

type nopMetrics struct{}

func (nopMetrics) GatewayRequest(string, time.Time, error) {}

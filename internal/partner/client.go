package partner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	domainErrors "github.com/cassiomorais/integrations/internal/domain/errors"
	"github.com/cassiomorais/integrations/internal/infrastructure/observability"
	"github.com/cassiomorais/integrations/pkg/retry"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// TokenGrant is what the partner returns from the token endpoints.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	SellerID     string
}

type ClientConfig struct {
	Timeout          time.Duration
	Retry            retry.Config
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// tokenResponse covers both token endpoints. A non-empty Error means the call was refused.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpireIn     int64  `json:"expire_in"`
	ShopID       any    `json:"shop_id"`
	Error        string `json:"error"`
	Message      string `json:"message"`
	RequestID    string `json:"request_id"`
}

// revokedCodes are the partner error codes meaning the seller's authorization
// or refresh token is no longer valid. Other refusals (bad signature, bad
// parameters, clock skew) say nothing about the authorization.
var revokedCodes = map[string]bool{
	"error_auth":            true,
	"error_permission":      true,
	"invalid_refresh_token": true,
	"invalid_access_token":  true,
}

// Client performs the signed token calls. Each call has a timeout, at most
// cfg.Retry.MaxAttempts tries on transport failures, and sits behind a breaker.
type Client struct {
	http    *resty.Client
	signer  *Signer
	breaker *gobreaker.CircuitBreaker[*TokenGrant]
	retry   retry.Config
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewClient(signer *Signer, cfg ClientConfig, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	threshold := uint32(cfg.BreakerThreshold)
	if threshold == 0 {
		threshold = 5
	}

	c := &Client{
		http: resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json").
			SetHeader("Content-Type", "application/json"),
		signer:  signer,
		retry:   cfg.Retry,
		metrics: metrics,
		logger:  logger.With().Str("component", "partner_client").Logger(),
	}
	if c.retry.MaxAttempts == 0 {
		c.retry = retry.DefaultConfig()
	}
	c.retry.RetryIf = func(err error) bool {
		return errors.Is(err, domainErrors.ErrPartnerUnavailable) && !errors.Is(err, gobreaker.ErrOpenState)
	}

	c.breaker = gobreaker.NewCircuitBreaker[*TokenGrant](gobreaker.Settings{
		Name:        "partner",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// refusals are answers, not outages
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domainErrors.ErrPartnerUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Partner circuit breaker state changed")
			if c.metrics != nil {
				c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

// ExchangeToken trades an authorization code for the first token pair.
func (c *Client) ExchangeToken(ctx context.Context, creds Credentials, code, sellerID string) (*TokenGrant, error) {
	body := map[string]any{
		"code":       code,
		"partner_id": numeric(creds.PartnerID),
		"shop_id":    numeric(sellerID),
	}
	return c.call(ctx, "token_exchange", creds, PathTokenExchange, body, sellerID)
}

// RefreshAccessToken fetches a new access token. The partner may rotate the refresh token.
func (c *Client) RefreshAccessToken(ctx context.Context, creds Credentials, refreshToken, sellerID string) (*TokenGrant, error) {
	body := map[string]any{
		"refresh_token": refreshToken,
		"partner_id":    numeric(creds.PartnerID),
		"shop_id":       numeric(sellerID),
	}
	return c.call(ctx, "access_token_refresh", creds, PathRefreshAccessToken, body, sellerID)
}

func (c *Client) call(ctx context.Context, endpoint string, creds Credentials, path string, body map[string]any, sellerID string) (*TokenGrant, error) {
	cfg := c.retry
	cfg.OnRetry = func(attempt uint, err error) {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Uint("attempt", attempt).Msg("Retrying partner call")
		if c.metrics != nil {
			c.metrics.PartnerRetries.WithLabelValues(endpoint).Inc()
		}
	}

	start := time.Now()
	grant, err := retry.DoWithResult(ctx, cfg, func() (*TokenGrant, error) {
		grant, err := c.breaker.Execute(func() (*TokenGrant, error) {
			return c.post(ctx, creds, path, body)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.countBreaker("rejected")
			return nil, fmt.Errorf("%w: %w", domainErrors.ErrPartnerUnavailable, err)
		}
		c.countBreaker("allowed")
		return grant, err
	})
	c.observe(endpoint, start, err)
	if err != nil {
		return nil, err
	}
	if grant.SellerID == "" {
		grant.SellerID = sellerID
	}
	return grant, nil
}

func (c *Client) post(ctx context.Context, creds Credentials, path string, body map[string]any) (*TokenGrant, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.signer.SignedURL(creds, path, nil))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrPartnerUnavailable, err)
	}

	status := resp.StatusCode()
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d", domainErrors.ErrPartnerUnavailable, status)
	}

	var out tokenResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		if status >= http.StatusBadRequest {
			return nil, rejected(status, "", fmt.Sprintf("status %d", status))
		}
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrPartnerMalformedResponse, err)
	}
	if out.Error != "" || status >= http.StatusBadRequest {
		return nil, rejected(status, out.Error, out.Error+" "+out.Message)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access_token", domainErrors.ErrPartnerMalformedResponse)
	}

	return &TokenGrant{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		ExpiresIn:    time.Duration(out.ExpireIn) * time.Second,
		SellerID:     idString(out.ShopID),
	}, nil
}

// rejected marks refusals that revoke the authorization so callers can tell
// them apart from request-level errors.
func rejected(status int, code, detail string) error {
	if revokedCodes[code] || (code == "" && (status == http.StatusUnauthorized || status == http.StatusForbidden)) {
		return fmt.Errorf("%w: %w: %s", domainErrors.ErrPartnerAuthRevoked, domainErrors.ErrPartnerRejected, detail)
	}
	return fmt.Errorf("%w: %s", domainErrors.ErrPartnerRejected, detail)
}

func (c *Client) observe(endpoint string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	result := "success"
	switch {
	case errors.Is(err, domainErrors.ErrPartnerUnavailable):
		result = "unavailable"
	case errors.Is(err, domainErrors.ErrPartnerRejected):
		result = "rejected"
	case err != nil:
		result = "malformed"
	}
	c.metrics.PartnerCallsTotal.WithLabelValues(endpoint, result).Inc()
	c.metrics.PartnerCallDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (c *Client) countBreaker(result string) {
	if c.metrics != nil {
		c.metrics.CircuitBreakerRequests.WithLabelValues(c.breaker.Name(), result).Inc()
	}
}

// numeric sends ids as JSON numbers when they are numeric, as the partner expects.
func numeric(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	default:
		return ""
	}
}

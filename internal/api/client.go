// Package api – shop server client.
//
// Client speaks the session endpoints of the shop server and maps every
// outcome onto the domain.Status taxonomy, so services never branch on
// raw HTTP codes. Each call is traced, carries a correlation id, and runs
// under a context tracked by the cancellation registry.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/storefront-dev/go-shop-client/internal/domain"
)

// requestIDHeader carries the client-generated correlation id.
const requestIDHeader = "X-Request-ID"

// VerifyResult is the decoded session-verification response.
type VerifyResult struct {
	Status          domain.Status            `json:"status"`
	User            *domain.UserSnapshot     `json:"user"`
	AccessTokenExp  time.Time                `json:"accessTokenExp"`
	RefreshTokenExp time.Time                `json:"refreshTokenExp"`
	Products        []domain.ProductSnapshot `json:"purchaseProductList"`
	CartItems       []domain.CartItem        `json:"cartItemList"`
	CartWasMerged   bool                     `json:"cartWasMerged"`
	OrderDraftID    string                   `json:"orderDraftId"`
}

// RefreshResult is the decoded token-refresh response.
type RefreshResult struct {
	Status         domain.Status `json:"status"`
	AccessTokenExp time.Time     `json:"accessTokenExp"`
}

// GuestSyncResult is the decoded guest-cart sync response: fresh product
// snapshots for the lines the guest holds.
type GuestSyncResult struct {
	Status   domain.Status            `json:"status"`
	Products []domain.ProductSnapshot `json:"purchaseProductList"`
}

// Client calls the shop server. All fields must be set; NewClient applies
// the defaults worth having.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Cancels *CancelRegistry
	Log     zerolog.Logger

	tracer trace.Tracer
}

// NewClient constructs a Client with a sane default transport timeout.
func NewClient(baseURL string, cancels *CancelRegistry, log zerolog.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		Cancels: cancels,
		Log:     log,
		tracer:  otel.Tracer("shop-client/api"),
	}
}

// verifyRequest is the wire payload for session verification: the guest
// cart travels along so the server can merge it into the account cart.
type verifyRequest struct {
	Cart []domain.CartLine `json:"cart"`
}

// VerifySession calls the session-verification endpoint with the current
// guest-cart payload. A nil error with a non-success Status is the normal
// way protocol-level failures surface; err is non-nil only when the
// context was cancelled before a result existed.
func (c *Client) VerifySession(ctx context.Context, guestCart []domain.CartLine) (*VerifyResult, error) {
	if guestCart == nil {
		guestCart = []domain.CartLine{}
	}
	out := &VerifyResult{}
	status, err := c.do(ctx, "VerifySession", "/api/v1/session/verify", verifyRequest{Cart: guestCart}, out)
	if err != nil {
		return nil, err
	}
	out.Status = status
	return out, nil
}

// Refresh calls the token-refresh endpoint (no body).
func (c *Client) Refresh(ctx context.Context) (*RefreshResult, error) {
	out := &RefreshResult{}
	status, err := c.do(ctx, "Refresh", "/api/v1/session/refresh", nil, out)
	if err != nil {
		return nil, err
	}
	out.Status = status
	return out, nil
}

// Logout calls the token-revocation endpoint. The response is advisory
// only: the caller proceeds with the client-side logout regardless, so
// every outcome collapses to a Status for logging.
func (c *Client) Logout(ctx context.Context) domain.Status {
	status, err := c.do(ctx, "Logout", "/api/v1/session/logout", nil, &struct{}{})
	if err != nil {
		return domain.StatusNetworkError
	}
	return status
}

// SyncGuestCart reports the guest cart to the server and fetches fresh
// product snapshots for its lines (the unauthenticated bootstrap path).
func (c *Client) SyncGuestCart(ctx context.Context, lines []domain.CartLine) (*GuestSyncResult, error) {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	out := &GuestSyncResult{}
	status, err := c.do(ctx, "SyncGuestCart", "/api/v1/cart/sync", verifyRequest{Cart: lines}, out)
	if err != nil {
		return nil, err
	}
	out.Status = status
	return out, nil
}

// do issues one tracked POST and decodes the response into out. The
// returned Status is authoritative; error is reserved for context
// cancellation (the one case where no outcome exists at all).
func (c *Client) do(ctx context.Context, op, path string, body, out any) (domain.Status, error) {
	ctx, release := c.Cancels.Track(ctx)
	defer release()

	ctx, span := c.tracer.Start(ctx, op)
	defer span.End()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return domain.StatusBadRequest, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, &buf)
	if err != nil {
		return domain.StatusBadRequest, nil
	}
	req.Header.Set("Content-Type", "application/json")
	rid := uuid.NewString()
	req.Header.Set(requestIDHeader, rid)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	lg := c.Log.With().Str("op", op).Str("request_id", rid).Logger()
	start := time.Now()

	res, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			lg.Debug().Err(ctx.Err()).Msg("request cancelled")
			return "", ctx.Err()
		}
		lg.Warn().Err(err).Dur("latency", time.Since(start)).Msg("transport failure")
		return domain.StatusNetworkError, nil
	}
	defer res.Body.Close()

	status := mapHTTPStatus(res.StatusCode)
	if status != domain.StatusSuccess && status != domain.StatusPartial {
		lg.Warn().Int("http_status", res.StatusCode).Str("status", string(status)).
			Dur("latency", time.Since(start)).Msg("shop server call failed")
		return status, nil
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		// Cancellation can surface mid-read as a body error.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lg.Warn().Err(err).Msg("undecodable response body")
		return domain.StatusParseError, nil
	}

	lg.Debug().Dur("latency", time.Since(start)).Msg("shop server call ok")
	return status, nil
}

// mapHTTPStatus maps an HTTP response code onto the domain taxonomy.
func mapHTTPStatus(code int) domain.Status {
	switch {
	case code == http.StatusPartialContent:
		return domain.StatusPartial
	case code >= 200 && code < 300:
		return domain.StatusSuccess
	case code == http.StatusUnauthorized:
		return domain.StatusUnauthenticated
	case code == http.StatusGone:
		return domain.StatusUserGone
	case code == http.StatusForbidden:
		return domain.StatusDenied
	case code == http.StatusNotFound:
		return domain.StatusNotFound
	case code == http.StatusConflict:
		return domain.StatusConflict
	case code >= 400 && code < 500:
		return domain.StatusBadRequest
	default:
		return domain.StatusServerError
	}
}

// Cancelled reports whether err is a context cancellation or deadline, the
// signal that a result must be abandoned rather than interpreted.
func Cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

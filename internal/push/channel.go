package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/storefront-dev/go-shop-client/internal/domain"
	"github.com/storefront-dev/go-shop-client/internal/state"
)

// Resyncer re-verifies the session against the server. The channel runs
// it after a reconnect so authoritative state subsumes anything missed
// while the stream was down (see services.SessionService.Resync).
type Resyncer interface {
	Resync(ctx context.Context) error
}

// pushMessage is the wire shape of one push event. Both fields are
// optional; a frame may carry either or both.
type pushMessage struct {
	NewManagedActiveOrdersCount *int                     `json:"newManagedActiveOrdersCount"`
	OrderUpdate                 *domain.OrderUpdateEvent `json:"orderUpdate"`
}

// Channel owns the push connection. Construct with NewChannel and start
// exactly one Run goroutine per application instance.
type Channel struct {
	URL         string
	HTTP        *http.Client
	Store       *state.Store
	Sessions    Resyncer
	Subscribers *SubscriberRegistry
	Log         zerolog.Logger

	// OrdersRoute is the route whose page-local counter tracks new
	// orders; deltas bump it only while that route is current.
	OrdersRoute string

	// Reconnect paces connection attempts so a flapping server is not
	// hammered.
	Reconnect *rate.Limiter

	needsResync bool
}

// NewChannel constructs a Channel. The HTTP client carries no timeout:
// the stream is supposed to stay open indefinitely and is torn down via
// the Run context instead.
func NewChannel(url, ordersRoute string, store *state.Store, sessions Resyncer, subs *SubscriberRegistry, log zerolog.Logger) *Channel {
	return &Channel{
		URL:         url,
		HTTP:        &http.Client{},
		Store:       store,
		Sessions:    sessions,
		Subscribers: subs,
		Log:         log,
		OrdersRoute: ordersRoute,
		Reconnect:   rate.NewLimiter(rate.Every(3*time.Second), 1),
	}
}

// Run connects, reads frames, and reconnects until ctx is cancelled.
// After any stream error the next successful open runs a full resync
// before a single further frame is processed.
func (c *Channel) Run(ctx context.Context) {
	first := true
	for {
		if err := c.Reconnect.Wait(ctx); err != nil {
			return
		}
		if !first {
			pushReconnects.Inc()
		}
		first = false

		c.runConnection(ctx)
		if ctx.Err() != nil {
			return
		}
	}
}

// runConnection opens the stream and reads it until it breaks. Any exit
// other than context cancellation flags the next open for resync.
func (c *Channel) runConnection(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		c.Log.Error().Err(err).Str("url", c.URL).Msg("push request unbuildable")
		c.needsResync = true
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	res, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.Log.Warn().Err(err).Msg("push connect failed")
		}
		c.needsResync = true
		return
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		c.Log.Warn().Int("http_status", res.StatusCode).Msg("push endpoint rejected the connection")
		c.needsResync = true
		return
	}

	if c.needsResync {
		pushResyncs.Inc()
		if err := c.Sessions.Resync(ctx); err != nil {
			c.Log.Warn().Err(err).Msg("post-reconnect resync failed, retrying on next connection")
			return
		}
		c.needsResync = false
		c.Log.Info().Msg("push channel resynced after reconnect")
	}

	fr := newFrameReader(res.Body)
	for {
		f, err := fr.next()
		if err != nil {
			if ctx.Err() == nil {
				c.Log.Warn().Err(err).Msg("push stream broke, will resync on reconnect")
				c.needsResync = true
			}
			return
		}
		// The generation is captured at receipt: a resync that lands
		// between receipt and apply must invalidate this frame's delta.
		c.handleFrame(f, c.Store.SyncGeneration())
	}
}

func (c *Channel) handleFrame(f frame, gen uint64) {
	var msg pushMessage
	if err := json.Unmarshal([]byte(f.data), &msg); err != nil {
		pushEvents.WithLabelValues("dropped").Inc()
		c.Log.Debug().Err(err).Str("event", f.event).Msg("unparseable push frame dropped")
		return
	}

	applied := false
	if msg.NewManagedActiveOrdersCount != nil {
		delta := *msg.NewManagedActiveOrdersCount
		if c.Store.AdjustManagedOrders(delta, gen) {
			applied = true
			if delta > 0 && c.Store.Route() == c.OrdersRoute {
				c.Store.BumpPageCounter(delta)
			}
		} else {
			pushEvents.WithLabelValues("stale").Inc()
			c.Log.Debug().Int("delta", delta).Msg("stale counter delta rejected across resync boundary")
		}
	}

	if msg.OrderUpdate != nil {
		c.Subscribers.Notify(*msg.OrderUpdate)
		applied = true
	}
	if applied {
		pushEvents.WithLabelValues("applied").Inc()
	}
}

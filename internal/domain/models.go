package domain

import "time"

// User roles recognized by the client. Only RoleCustomer gets a cart
// installed at login; RoleAdmin additionally carries privileged counters
// and privileged product-cache fields that are purged at logout.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// UserSnapshot is the client's view of the authenticated user. It is
// replaced wholesale on login, refresh, or push resync — never patched
// field-by-field, except for the explicit counter adjustments owned by
// the state store.
type UserSnapshot struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Role     string  `json:"role"`
	Discount float64 `json:"discount"` // account discount rate in [0,1]

	// UnreadNotifications is the account-wide unread counter.
	UnreadNotifications int `json:"unreadNotificationsCount"`

	// ManagedActiveOrders is the privileged active-order counter,
	// mutated additively by push deltas and absolutely by resync.
	ManagedActiveOrders int `json:"managedActiveOrdersCount"`
}

// Privileged reports whether the snapshot belongs to a privileged role.
func (u *UserSnapshot) Privileged() bool {
	return u != nil && u.Role == RoleAdmin
}

// Session is the process-wide authentication state. Exactly one exists;
// it is created idle at startup, populated by bootstrap or login, and
// cleared by logout.
//
// State machine: idle → ready(authenticated) | ready(unauthenticated) |
// ready(local-fallback); from any ready state logout returns to
// ready(unauthenticated). ForceRedirectToLogin is sticky and cleared only
// by a successful re-authentication.
type Session struct {
	Ready           bool
	IsAuthenticated bool

	// IsLocalFallback marks a session reconstructed from cached user data
	// because the server was unreachable. Mutating operations against
	// account-tracked state are disabled while set.
	IsLocalFallback bool

	User *UserSnapshot

	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time

	// OrderDraftID is a checkout draft surfaced by session verification,
	// kept so an interrupted checkout can resume.
	OrderDraftID string

	SuppressRedirect     bool
	ForceRedirectToLogin bool
}

// ItemFlags carries the per-line drift markers set by reconciliation in
// authenticated mode. Guest carts never carry flags: drift is resolved by
// dropping or clamping the line instead.
type ItemFlags struct {
	QuantityReduced bool `json:"quantityReduced"`
	OutOfStock      bool `json:"outOfStock"`
	Inactive        bool `json:"inactive"`
	Deleted         bool `json:"deleted"`
}

// Zero reports whether no flag is set.
func (f ItemFlags) Zero() bool { return f == ItemFlags{} }

// CartItem is one cart line, keyed uniquely by ProductID. The state store
// owns the list; the local-storage copy is a write-through mirror for the
// guest case, never a second source of truth.
type CartItem struct {
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	Flags     ItemFlags `json:"flags"`
}

// CartLine is the wire projection of a cart item: what the client sends
// to the server, with all local-only flags discarded.
type CartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// ProductSnapshot mirrors the server's product data. It is used only to
// compute totals and line validity client-side; the server re-validates
// everything at checkout commit time.
type ProductSnapshot struct {
	ID        string  `json:"id"`
	Price     int64   `json:"price"`    // minor currency units
	Discount  float64 `json:"discount"` // product discount rate in [0,1]
	Available int     `json:"available"`
	IsActive  bool    `json:"isActive"`

	// WholesalePrice is visible to privileged roles only and is purged
	// from the cache when a privileged user logs out.
	WholesalePrice int64 `json:"wholesalePrice,omitempty"`
}

// PriceChanged reports whether the totals-relevant fields differ between
// two snapshots. Stock and activity changes alone do not affect totals.
func (p ProductSnapshot) PriceChanged(q ProductSnapshot) bool {
	return p.Price != q.Price || p.Discount != q.Discount
}

// CartTotals is derived state: always a pure function of the current cart
// lines, product cache, and discount rate. Both values are minor units.
type CartTotals struct {
	Raw        int64 `json:"rawTotal"`
	Discounted int64 `json:"discountedTotal"`
}

// OrderUpdateEvent is a transient push notification about a changed
// order. It is fanned out to subscribers and discarded; no event log is
// kept client-side.
type OrderUpdateEvent struct {
	OrderID       string         `json:"orderId"`
	ChangedFields map[string]any `json:"changedFields"`
}

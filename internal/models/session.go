package models

import "time"

// State is a step of the ordering conversation.
type State string

const (
	StateStart                  State = "start"
	StateAwaitingMenuChoice     State = "awaiting-menu-choice"
	StateAwaitingSize           State = "awaiting-size"
	StateAwaitingDrinkChoice    State = "awaiting-drink-choice"
	StateAwaitingDrinkSelection State = "awaiting-drink-selection"
	StateAwaitingPaymentMethod  State = "awaiting-payment-method"
	StateAwaitingDeliveryMode   State = "awaiting-delivery-mode"
	StateAwaitingAddress        State = "awaiting-address"
	StateAwaitingConfirmation   State = "awaiting-confirmation"
	StateConfirmed              State = "confirmed"
	StateCancelled              State = "cancelled"
)

// Terminal reports whether no further input is accepted in s.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateCancelled
}

// SessionKey identifies one customer's conversation with one tenant.
type SessionKey struct {
	TenantID string `json:"tenant_id"`
	Address  string `json:"address"`
}

func (k SessionKey) String() string {
	return k.TenantID + "/" + k.Address
}

// Accumulator is the partially built order carried through the conversation.
type Accumulator struct {
	MenuChoice    int    `json:"menu_choice,omitempty"`
	MenuItem      string `json:"menu_item,omitempty"`
	Size          string `json:"size,omitempty"`
	Currency      string `json:"currency,omitempty"` // Symbol the prices were quoted in
	SizePrice     int64  `json:"size_price"`
	WantsDrink    bool   `json:"wants_drink"`
	DrinkChoice   int    `json:"drink_choice,omitempty"`
	Drink         string `json:"drink,omitempty"`
	DrinkPrice    int64  `json:"drink_price"`
	PaymentMethod string `json:"payment_method,omitempty"`
	DeliveryMode  string `json:"delivery_mode,omitempty"`
	Address       string `json:"address,omitempty"`
	DeliveryFee   int64  `json:"delivery_fee"`
	Total         int64  `json:"total"`
}

// ComputeTotal is the order total: base size price, drink add-on and the
// delivery fee when the order is delivered.
func (a Accumulator) ComputeTotal() int64 {
	total := a.SizePrice + a.DrinkPrice
	if a.DeliveryMode == DeliveryModeDelivery {
		total += a.DeliveryFee
	}
	return total
}

// Session is one customer's in-progress order conversation.
type Session struct {
	Key            SessionKey  `json:"key"`
	State          State       `json:"state"`
	Order          Accumulator `json:"order"`
	Retries        int         `json:"retries"` // Consecutive invalid inputs in the current state
	CreatedAt      time.Time   `json:"created_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

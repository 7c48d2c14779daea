package models

import "time"

// Order is created exactly once, when a chat session reaches the confirmed
// state.
type Order struct {
	ID              string `json:"id" gorm:"primaryKey"`
	TenantID        string `json:"tenant_id" gorm:"index"`
	CustomerAddress string `json:"customer_address" gorm:"index"`

	MenuItem      string `json:"menu_item"`
	Size          string `json:"size"`
	Drink         string `json:"drink"`
	PaymentMethod string `json:"payment_method"`
	DeliveryMode  string `json:"delivery_mode"` // "delivery" or "pickup"
	Address       string `json:"address"`

	// Pricing, minor units
	SizePrice   int64 `json:"size_price"`
	DrinkPrice  int64 `json:"drink_price"`
	DeliveryFee int64 `json:"delivery_fee"`
	Total       int64 `json:"total"`

	Status string `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderStatus constants
const (
	OrderStatusReceived  = "received"
	OrderStatusPreparing = "preparing"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// Delivery modes
const (
	DeliveryModeDelivery = "delivery"
	DeliveryModePickup   = "pickup"
)

package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Tenant represents one restaurant subscribed to the platform. It owns exactly
// one chat-transport connection.
type Tenant struct {
	ID          string `json:"id" yaml:"id" gorm:"primaryKey"`
	Name        string `json:"name" yaml:"name"`
	Currency    string `json:"currency" yaml:"currency"`
	PrivacyMode bool   `json:"privacy_mode" yaml:"privacy_mode"` // Only allow-listed addresses may order
	DeliveryFee int64  `json:"delivery_fee" yaml:"delivery_fee"` // Minor units (cents)
	OpenHours   string `json:"open_hours" yaml:"open_hours"`     // "HH:MM-HH:MM", empty means always open
	AutoStart   bool   `json:"auto_start" yaml:"auto_start"`

	// Transport credentials
	WhatsAppFrom      string `json:"whatsapp_from" yaml:"whatsapp_from"` // Format: "whatsapp:+14155238886"
	MatrixHomeserver  string `json:"matrix_homeserver" yaml:"matrix_homeserver"`
	MatrixUserID      string `json:"matrix_user_id" yaml:"matrix_user_id"`
	MatrixAccessToken string `json:"-" yaml:"matrix_access_token"`

	MenuItems []MenuItem  `json:"menu_items" yaml:"menu_items" gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE"`
	Sizes     []SizePrice `json:"sizes" yaml:"sizes" gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE"`
	Drinks    []Drink     `json:"drinks" yaml:"drinks" gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// MenuItem is one dish offered by a tenant. Position is the 1-based index
// customers type to pick it.
type MenuItem struct {
	ID       uint   `json:"id" yaml:"-" gorm:"primaryKey"`
	TenantID string `json:"tenant_id" yaml:"-" gorm:"index"`
	Position int    `json:"position" yaml:"position"`
	Name     string `json:"name" yaml:"name"`
}

// SizePrice is the base price for a size token ("S", "M", "L", ...).
type SizePrice struct {
	ID       uint   `json:"id" yaml:"-" gorm:"primaryKey"`
	TenantID string `json:"tenant_id" yaml:"-" gorm:"uniqueIndex:ux_tenant_size,priority:1"`
	Size     string `json:"size" yaml:"size" gorm:"uniqueIndex:ux_tenant_size,priority:2"`
	Label    string `json:"label" yaml:"label"`
	Price    int64  `json:"price" yaml:"price"`
}

// Drink is an add-on drink. Position is the 1-based index customers type.
type Drink struct {
	ID       uint   `json:"id" yaml:"-" gorm:"primaryKey"`
	TenantID string `json:"tenant_id" yaml:"-" gorm:"index"`
	Position int    `json:"position" yaml:"position"`
	Name     string `json:"name" yaml:"name"`
	Price    int64  `json:"price" yaml:"price"`
}

// TenantConfig is the read-only pricing and menu snapshot the conversation
// engine works from.
type TenantConfig struct {
	TenantID    string           `json:"tenant_id"`
	Name        string           `json:"name"`
	Currency    string           `json:"currency"`
	Menu        []string         `json:"menu"`
	Sizes       []SizeOption     `json:"sizes"`
	SizePrices  map[string]int64 `json:"size_prices"`
	Drinks      []DrinkOption    `json:"drinks"`
	DeliveryFee int64            `json:"delivery_fee"`
	OpenHours   string           `json:"open_hours"`
	PrivacyMode bool             `json:"privacy_mode"`
}

// SizeOption is a size in display order.
type SizeOption struct {
	Token string `json:"token"`
	Label string `json:"label"`
	Price int64  `json:"price"`
}

// DrinkOption is a drink in display order (index 0 is choice "1").
type DrinkOption struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// FillPositions numbers menu items and drinks that have no explicit
// position by their order in the slice.
func (t *Tenant) FillPositions() {
	for i := range t.MenuItems {
		if t.MenuItems[i].Position == 0 {
			t.MenuItems[i].Position = i + 1
		}
	}
	for i := range t.Drinks {
		if t.Drinks[i].Position == 0 {
			t.Drinks[i].Position = i + 1
		}
	}
}

// Config builds the engine snapshot from the persisted tenant.
func (t *Tenant) Config() *TenantConfig {
	conf := &TenantConfig{
		TenantID:    t.ID,
		Name:        t.Name,
		Currency:    t.Currency,
		SizePrices:  make(map[string]int64, len(t.Sizes)),
		DeliveryFee: t.DeliveryFee,
		OpenHours:   t.OpenHours,
		PrivacyMode: t.PrivacyMode,
	}
	if conf.Currency == "" {
		conf.Currency = "$"
	}

	items := append([]MenuItem(nil), t.MenuItems...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	for _, item := range items {
		conf.Menu = append(conf.Menu, item.Name)
	}

	for _, size := range t.Sizes {
		token := strings.ToUpper(strings.TrimSpace(size.Size))
		label := size.Label
		if label == "" {
			label = token
		}
		conf.Sizes = append(conf.Sizes, SizeOption{Token: token, Label: label, Price: size.Price})
		conf.SizePrices[token] = size.Price
	}

	drinks := append([]Drink(nil), t.Drinks...)
	sort.SliceStable(drinks, func(i, j int) bool { return drinks[i].Position < drinks[j].Position })
	for _, drink := range drinks {
		conf.Drinks = append(conf.Drinks, DrinkOption{Name: drink.Name, Price: drink.Price})
	}

	return conf
}

// DrinkPrice returns the add-on price for a 1-based drink choice.
func (c *TenantConfig) DrinkPrice(choice int) (int64, bool) {
	if choice < 1 || choice > len(c.Drinks) {
		return 0, false
	}
	return c.Drinks[choice-1].Price, true
}

// IsOpen reports whether t falls inside the tenant's open hours. An empty or
// malformed window means always open.
func (c *TenantConfig) IsOpen(t time.Time) bool {
	from, to, err := ParseOpenHours(c.OpenHours)
	if err != nil {
		return true
	}
	minute := t.Hour()*60 + t.Minute()
	if from <= to {
		return minute >= from && minute < to
	}
	// Window wraps past midnight, e.g. 18:00-02:00
	return minute >= from || minute < to
}

// ParseOpenHours parses "HH:MM-HH:MM" into minutes since midnight.
func ParseOpenHours(window string) (from, to int, err error) {
	window = strings.TrimSpace(window)
	if window == "" {
		return 0, 0, fmt.Errorf("open hours not set")
	}
	parts := strings.Split(window, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid open hours %q", window)
	}
	if from, err = parseClock(parts[0]); err != nil {
		return 0, 0, err
	}
	if to, err = parseClock(parts[1]); err != nil {
		return 0, 0, err
	}
	if from == to {
		return 0, 0, fmt.Errorf("empty open hours window %q", window)
	}
	return from, to, nil
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// FormatMoney renders minor units as "<currency>12.50".
func FormatMoney(currency string, amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%s%d.%02d", sign, currency, amount/100, amount%100)
}

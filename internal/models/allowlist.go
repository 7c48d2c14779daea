package models

import "time"

// AllowListEntry permits one customer address to talk to a tenant that has
// privacy mode enabled.
type AllowListEntry struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"uniqueIndex:ux_tenant_address,priority:1"`
	Address   string    `json:"address" gorm:"uniqueIndex:ux_tenant_address,priority:2"`
	CreatedAt time.Time `json:"created_at"`
}

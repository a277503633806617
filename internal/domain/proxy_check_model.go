package domain

import "time"

// ProxyCheck keeps the latest checker verdict per proxy.
type ProxyCheck struct {
	Proxy        string    `gorm:"primaryKey;size:255"`
	Alive        bool      `gorm:"not null;index:idx_proxy_checks_alive_total,priority:1"`
	TotalSeconds float64   `gorm:"not null;default:0;index:idx_proxy_checks_alive_total,priority:2"`
	StatusCode   int       `gorm:"not null;default:0"`
	Error        string    `gorm:"size:255"`
	TestURL      string    `gorm:"size:512"`
	CheckedAt    time.Time `gorm:"not null;index"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

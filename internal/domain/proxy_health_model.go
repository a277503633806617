package domain

import "time"

// ProxyHealth is the persisted form of one pool entry. Timestamps are nil
// when the event never happened.
type ProxyHealth struct {
	Proxy             string `gorm:"primaryKey;size:255"`
	SuccessCount      int    `gorm:"not null;default:0"`
	FailureCount      int    `gorm:"not null;default:0"`
	TotalFailures     int    `gorm:"not null;default:0"`
	LastSuccessAt     *time.Time
	LastFailureAt     *time.Time
	LastUsedAt        *time.Time
	AverageResponseMs float64 `gorm:"not null;default:0"`
	Measured          bool    `gorm:"not null;default:false"`
	Blacklisted       bool    `gorm:"not null;index"`
	InstanceID        string  `gorm:"size:191;index"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

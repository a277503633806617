package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"railwatch/internal/domain"
	"railwatch/internal/proxypool"
	"railwatch/internal/support"
)

const proxyHealthBatchSize = 200

// SaveProxyHealth upserts one row per pool entry, keyed by proxy address.
func SaveProxyHealth(ctx context.Context, entries []proxypool.Health) error {
	if DB == nil {
		return ErrNotConfigured
	}
	if len(entries) == 0 {
		return nil
	}

	instanceID := support.GetInstanceID()
	rows := make([]domain.ProxyHealth, 0, len(entries))
	for _, entry := range entries {
		if entry.Proxy == "" {
			continue
		}
		rows = append(rows, proxyHealthRow(entry, instanceID))
	}
	if len(rows) == 0 {
		return nil
	}

	return DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "proxy"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"success_count",
				"failure_count",
				"total_failures",
				"last_success_at",
				"last_failure_at",
				"last_used_at",
				"average_response_ms",
				"measured",
				"blacklisted",
				"instance_id",
				"updated_at",
			}),
		}).CreateInBatches(&rows, proxyHealthBatchSize).Error
	})
}

// LoadProxyHealth returns every persisted entry ordered by proxy address.
func LoadProxyHealth(ctx context.Context) ([]proxypool.Health, error) {
	if DB == nil {
		return nil, ErrNotConfigured
	}

	var rows []domain.ProxyHealth
	if err := DB.WithContext(ctx).Order("proxy").Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]proxypool.Health, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, proxyHealthEntry(row))
	}
	return entries, nil
}

func proxyHealthRow(entry proxypool.Health, instanceID string) domain.ProxyHealth {
	return domain.ProxyHealth{
		Proxy:             entry.Proxy,
		SuccessCount:      entry.SuccessCount,
		FailureCount:      entry.FailureCount,
		TotalFailures:     entry.TotalFailures,
		LastSuccessAt:     optionalTime(entry.LastSuccessAt),
		LastFailureAt:     optionalTime(entry.LastFailureAt),
		LastUsedAt:        optionalTime(entry.LastUsedAt),
		AverageResponseMs: float64(entry.AverageResponse) / float64(time.Millisecond),
		Measured:          entry.Measured,
		Blacklisted:       entry.Blacklisted,
		InstanceID:        instanceID,
	}
}

func proxyHealthEntry(row domain.ProxyHealth) proxypool.Health {
	return proxypool.Health{
		Proxy:           row.Proxy,
		SuccessCount:    row.SuccessCount,
		FailureCount:    row.FailureCount,
		TotalFailures:   row.TotalFailures,
		LastSuccessAt:   derefTime(row.LastSuccessAt),
		LastFailureAt:   derefTime(row.LastFailureAt),
		LastUsedAt:      derefTime(row.LastUsedAt),
		AverageResponse: time.Duration(row.AverageResponseMs * float64(time.Millisecond)),
		Measured:        row.Measured,
		Blacklisted:     row.Blacklisted,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

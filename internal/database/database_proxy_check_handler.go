package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"railwatch/internal/domain"
	"railwatch/internal/proxylist"
	"railwatch/internal/proxypool"
)

// SaveProxyChecks records the checker verdicts taken at checkedAt. A row is
// only replaced by a newer check.
func SaveProxyChecks(ctx context.Context, results []proxylist.Result, checkedAt time.Time) error {
	if DB == nil {
		return ErrNotConfigured
	}

	latest := make(map[string]domain.ProxyCheck, len(results))
	for _, result := range results {
		if result.Proxy == "" {
			continue
		}
		latest[result.Proxy] = domain.ProxyCheck{
			Proxy:        result.Proxy,
			Alive:        result.Status == proxylist.StatusWorking,
			TotalSeconds: result.Timings.Total,
			StatusCode:   result.StatusCode,
			Error:        result.Error,
			TestURL:      result.TestURL,
			CheckedAt:    checkedAt.UTC(),
		}
	}
	if len(latest) == 0 {
		return nil
	}

	entries := make([]domain.ProxyCheck, 0, len(latest))
	for _, entry := range latest {
		entries = append(entries, entry)
	}

	return DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "proxy"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"alive":         gorm.Expr("excluded.alive"),
			"total_seconds": gorm.Expr("excluded.total_seconds"),
			"status_code":   gorm.Expr("excluded.status_code"),
			"error":         gorm.Expr("excluded.error"),
			"test_url":      gorm.Expr("excluded.test_url"),
			"checked_at":    gorm.Expr("excluded.checked_at"),
			"updated_at":    gorm.Expr("CURRENT_TIMESTAMP"),
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "excluded.checked_at >= proxy_checks.checked_at"},
		}},
	}).Create(&entries).Error
}

// LoadAliveProxySeeds returns the proxies whose latest check passed, fastest
// first.
func LoadAliveProxySeeds(ctx context.Context) ([]proxypool.Seed, error) {
	if DB == nil {
		return nil, ErrNotConfigured
	}

	var rows []domain.ProxyCheck
	err := DB.WithContext(ctx).
		Where("alive = ?", true).
		Order("total_seconds ASC").
		Order("proxy ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	seeds := make([]proxypool.Seed, 0, len(rows))
	for _, row := range rows {
		seeds = append(seeds, proxypool.Seed{
			Address: row.Proxy,
			Latency: time.Duration(row.TotalSeconds * float64(time.Second)),
		})
	}
	return seeds, nil
}

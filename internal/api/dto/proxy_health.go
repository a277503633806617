package dto

import "time"

type ProxyHealth struct {
	Proxy             string     `json:"proxy"`
	Country           string     `json:"country,omitempty"`
	SuccessCount      int        `json:"success_count"`
	FailureCount      int        `json:"failure_count"`
	TotalFailures     int        `json:"total_failures"`
	AverageResponseMs *float64   `json:"average_response_ms"`
	Fast              bool       `json:"fast"`
	Blacklisted       bool       `json:"blacklisted"`
	LastSuccessAt     *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt     *time.Time `json:"last_failure_at,omitempty"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
}

type ProxyPoolSummary struct {
	Total       int `json:"total"`
	Fast        int `json:"fast"`
	Blacklisted int `json:"blacklisted"`
}

type ProxyPool struct {
	Summary ProxyPoolSummary `json:"summary"`
	Proxies []ProxyHealth    `json:"proxies"`
}

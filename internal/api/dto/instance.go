package dto

import "time"

type InstancePool struct {
	Total       int `json:"total"`
	Fast        int `json:"fast"`
	Blacklisted int `json:"blacklisted"`
}

type Instance struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Region    string       `json:"region"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	Pool      InstancePool `json:"pool"`
	Current   bool         `json:"current"`
}

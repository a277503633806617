package dto

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope wraps every API response body.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

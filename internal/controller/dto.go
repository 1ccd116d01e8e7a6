package controller

// acceptedBody is the acknowledgment the gateway expects for a delivered batch.
const acceptedBody = "[accepted]"

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse reports service health.
type HealthResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

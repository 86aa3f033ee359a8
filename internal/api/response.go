package api

// StatusResponse acknowledges an operation that has no payload of its own.
type StatusResponse struct {
	Status string `json:"status"`
}

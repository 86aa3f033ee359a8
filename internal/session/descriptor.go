package session

import (
	"net/http"
	"time"
)

// Platform auth endpoints, relative to the configured base URL.
const (
	LoginPath    = "/auth/login"
	RegisterPath = "/auth/register"
	RefreshPath  = "/auth/refresh"
)

// Descriptor describes one platform request. A descriptor is immutable:
// retry state lives in the dispatch loop, never in the descriptor, so the
// same value can be sent again byte for byte.
type Descriptor struct {
	Op      string        // short operation name used in logs and metrics, e.g. "stats"
	Method  string        // http.MethodGet etc.
	Path    string        // relative to the platform base URL, e.g. "/auth/profile"
	Header  http.Header   // optional extra headers, copied onto the request
	Body    []byte        // raw JSON body, re-sent verbatim on replay
	Timeout time.Duration // optional override of the dispatcher's default budget
}

// IsRefresh reports whether the descriptor targets the token renewal
// endpoint. Renewal requests authenticate with the refresh token and are
// never replayed.
func (d Descriptor) IsRefresh() bool {
	return d.Path == RefreshPath
}

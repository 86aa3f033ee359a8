package session

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	apiGet := Descriptor{Op: "stats", Method: http.MethodGet, Path: "/analytics/stats"}
	refresh := Descriptor{Op: "refresh", Method: http.MethodPost, Path: RefreshPath}

	tests := []struct {
		name    string
		d       Descriptor
		status  int
		attempt int
		want    Verdict
	}{
		{
			name:    "first 401 is recoverable",
			d:       apiGet,
			status:  http.StatusUnauthorized,
			attempt: 0,
			want:    VerdictRetryableAuth,
		},
		{
			name:    "401 on a replayed request is final",
			d:       apiGet,
			status:  http.StatusUnauthorized,
			attempt: 1,
			want:    VerdictAlreadyRetried,
		},
		{
			name:    "401 on the renewal endpoint never triggers another renewal",
			d:       refresh,
			status:  http.StatusUnauthorized,
			attempt: 0,
			want:    VerdictRefreshEndpointFailure,
		},
		{
			name:    "renewal endpoint outranks the replay rule",
			d:       refresh,
			status:  http.StatusUnauthorized,
			attempt: 1,
			want:    VerdictRefreshEndpointFailure,
		},
		{
			name:    "any renewal endpoint failure is terminal",
			d:       refresh,
			status:  http.StatusBadGateway,
			attempt: 0,
			want:    VerdictRefreshEndpointFailure,
		},
		{
			name:    "403 is an ordinary failure",
			d:       apiGet,
			status:  http.StatusForbidden,
			attempt: 0,
			want:    VerdictOther,
		},
		{
			name:    "404 is an ordinary failure",
			d:       apiGet,
			status:  http.StatusNotFound,
			attempt: 0,
			want:    VerdictOther,
		},
		{
			name:    "500 is an ordinary failure",
			d:       apiGet,
			status:  http.StatusInternalServerError,
			attempt: 0,
			want:    VerdictOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.d, tt.status, tt.attempt))
		})
	}
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "retryable_auth", VerdictRetryableAuth.String())
	assert.Equal(t, "already_retried", VerdictAlreadyRetried.String())
	assert.Equal(t, "refresh_endpoint_failure", VerdictRefreshEndpointFailure.String())
	assert.Equal(t, "other", VerdictOther.String())
}

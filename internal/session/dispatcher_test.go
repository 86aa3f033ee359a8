package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyforge/planner-adapter/pkg/model"
)

// fakePlatform is a scripted upstream: /auth/refresh rotates the pair, every
// other path answers 200 only when the renewed access token is presented.
type fakePlatform struct {
	srv          *httptest.Server
	apiCalls     atomic.Int32
	refreshCalls atomic.Int32
	rejected     atomic.Int32 // API calls answered 401

	mu          sync.Mutex
	seenBearers []string
}

const renewedAccess = "renewed-access-token"

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	p := &fakePlatform{}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == RefreshPath {
			p.refreshCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer valid-refresh-token" {
				w.WriteHeader(http.StatusUnauthorized)
				writeJSON(w, map[string]string{"detail": "Could not validate credentials"})
				return
			}
			// Hold the cycle open briefly so concurrent failures join it.
			time.Sleep(150 * time.Millisecond)
			writeJSON(w, map[string]string{
				"access_token":  renewedAccess,
				"refresh_token": "renewed-refresh-token",
			})
			return
		}

		p.apiCalls.Add(1)
		bearer := r.Header.Get("Authorization")
		p.mu.Lock()
		p.seenBearers = append(p.seenBearers, bearer)
		p.mu.Unlock()

		if bearer != "Bearer "+renewedAccess {
			p.rejected.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"detail": "Could not validate credentials"})
			return
		}
		writeJSON(w, map[string]string{"result": "ok"})
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePlatform) bearers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.seenBearers))
	copy(out, p.seenBearers)
	return out
}

// ─── Credential attachment ────────────────────────────────────────────────────

func TestDispatcher_AttachesStoredBearer(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		writeJSON(w, map[string]string{"result": "ok"})
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, true)
	f.seedPair(t)

	resp, err := f.disp.Do(context.Background(), getDescriptor("/analytics/stats"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Bearer stale-access-token", gotAuth.Load())
}

func TestDispatcher_ExplicitAuthorizationHeaderWins(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		writeJSON(w, map[string]string{"result": "ok"})
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, true)
	f.seedPair(t)

	d := getDescriptor("/anything")
	d.Header = http.Header{"Authorization": []string{"Bearer caller-chosen-token"}}
	_, err := f.disp.Do(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "Bearer caller-chosen-token", gotAuth.Load())
}

func TestDispatcher_NoCredentialNoHeader(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		writeJSON(w, map[string]string{"result": "ok"})
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, true)

	_, err := f.disp.Do(context.Background(), Descriptor{
		Op: "login", Method: http.MethodPost, Path: LoginPath,
		Body: []byte(`{"email":"ana@example.com","password":"pw"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "", gotAuth.Load(), "unauthenticated calls carry no bearer")
}

// ─── Renew and replay ─────────────────────────────────────────────────────────

func TestDispatcher_RenewsAndReplaysOn401(t *testing.T) {
	p := newFakePlatform(t)
	f := newFixture(t, p.srv.URL, true)
	f.seedPair(t)

	resp, err := f.disp.Do(context.Background(), getDescriptor("/analytics/stats"))
	require.NoError(t, err, "the caller never observes the 401")
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"result":"ok"}`, string(resp.Body))

	assert.EqualValues(t, 1, p.refreshCalls.Load())
	assert.EqualValues(t, 2, p.apiCalls.Load(), "original call plus exactly one replay")

	bearers := p.bearers()
	require.Len(t, bearers, 2)
	assert.Equal(t, "Bearer stale-access-token", bearers[0])
	assert.Equal(t, "Bearer "+renewedAccess, bearers[1], "replay carries the renewed token")

	assert.True(t, f.term.Armed())
	assert.Equal(t, 0, f.notes.count(), "recovered failures are invisible")
}

func TestDispatcher_ConcurrentFailuresShareOneRenewal(t *testing.T) {
	p := newFakePlatform(t)
	f := newFixture(t, p.srv.URL, true)
	f.seedPair(t)

	const n = 8
	start := make(chan struct{})
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.disp.Do(context.Background(), getDescriptor("/analytics/stats"))
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.EqualValues(t, 1, p.refreshCalls.Load(), "one renewal serves every failing call")

	for _, bearer := range p.bearers()[int(p.rejected.Load()):] {
		assert.Equal(t, "Bearer "+renewedAccess, bearer)
	}
}

func TestDispatcher_ReplayedRequestIsNeverReplayedAgain(t *testing.T) {
	var apiCalls, refreshCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == RefreshPath {
			refreshCalls.Add(1)
			writeJSON(w, map[string]string{
				"access_token":  "renewed-access-token",
				"refresh_token": "renewed-refresh-token",
			})
			return
		}
		// The platform keeps rejecting even the renewed token.
		apiCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]string{"detail": "Could not validate credentials"})
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, true)
	f.seedPair(t)

	_, err := f.disp.Do(context.Background(), getDescriptor("/analytics/stats"))
	require.Error(t, err)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Status)

	assert.EqualValues(t, 2, apiCalls.Load(), "no third attempt, ever")
	assert.EqualValues(t, 1, refreshCalls.Load())
	assert.False(t, f.term.Armed(), "a replay rejection ends the session")
	require.Len(t, f.audit.byType(model.SessionTerminated), 1)
	assert.Equal(t, model.ReasonRepeatedAuthFail, f.audit.byType(model.SessionTerminated)[0].Reason)
}

func TestDispatcher_RefreshRejectionFansOutToAllCallers(t *testing.T) {
	var refreshCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == RefreshPath {
			refreshCalls.Add(1)
			time.Sleep(200 * time.Millisecond)
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"detail": "Could not validate credentials"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]string{"detail": "Could not validate credentials"})
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, true)
	f.seedPair(t)

	const n = 5
	start := make(chan struct{})
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.disp.Do(context.Background(), getDescriptor("/analytics/stats"))
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		require.Error(t, err, "caller %d", i)
		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr, "caller %d", i)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Status, "caller %d", i)
	}

	assert.EqualValues(t, 1, refreshCalls.Load())
	assert.Equal(t, 1, f.notes.count(), "one forced sign-out for five failing calls")
	assert.False(t, f.term.Armed())

	_, ok, err := f.creds.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDispatcher_MissingRefreshTokenSignsOutWithoutRenewalCall(t *testing.T) {
	var refreshCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == RefreshPath {
			refreshCalls.Add(1)
			writeJSON(w, map[string]string{"access_token": "a", "refresh_token": "r"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]string{"detail": "Could not validate credentials"})
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, true)
	// Nothing stored at all.

	_, err := f.disp.Do(context.Background(), getDescriptor("/analytics/stats"))
	require.Error(t, err)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Status)

	assert.EqualValues(t, 0, refreshCalls.Load(), "no renewal attempt without a refresh token")
	assert.False(t, f.term.Armed())
	assert.Equal(t, 1, f.notes.count())
}

// ─── Non-auth failures ────────────────────────────────────────────────────────

func TestDispatcher_Other4xxNotifiesOnceAndKeepsSession(t *testing.T) {
	var apiCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apiCalls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		writeJSON(w, map[string]string{"detail": "Target date must be in the future"})
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, true)
	f.seedPair(t)

	_, err := f.disp.Do(context.Background(), getDescriptor("/study-plan/create"))
	require.Error(t, err)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnprocessableEntity, httpErr.Status)
	assert.Equal(t, "Target date must be in the future", httpErr.Detail())

	assert.EqualValues(t, 1, apiCalls.Load(), "ordinary failures are not replayed")
	assert.Equal(t, 1, f.notes.count())
	assert.Equal(t, "Target date must be in the future", f.notes.last().Message)
	assert.True(t, f.term.Armed(), "the session survives ordinary failures")
}

func TestDispatcher_ServerErrorUnderStrictPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, true)
	f.seedPair(t)

	_, err := f.disp.Do(context.Background(), getDescriptor("/analytics/stats"))
	require.Error(t, err)

	assert.False(t, f.term.Armed(), "5xx ends the session under the strict policy")
	assert.Equal(t, 1, f.notes.count())
	require.Len(t, f.audit.byType(model.SessionTerminated), 1)
	assert.Equal(t, model.ReasonServerError, f.audit.byType(model.SessionTerminated)[0].Reason)
}

func TestDispatcher_ServerErrorUnderLenientPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, false)
	f.seedPair(t)

	_, err := f.disp.Do(context.Background(), getDescriptor("/analytics/stats"))
	require.Error(t, err)

	assert.True(t, f.term.Armed(), "lenient policy keeps the session alive on 5xx")
	assert.Equal(t, 1, f.notes.count())
	assert.Equal(t, genericFailureMessage, f.notes.last().Message)
}

func TestDispatcher_UnreachablePlatformUnderStrictPolicy(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	f := newFixture(t, baseURL, true)
	f.seedPair(t)

	_, err := f.disp.Do(context.Background(), getDescriptor("/analytics/stats"))
	require.Error(t, err)
	assert.False(t, f.term.Armed())
	assert.Equal(t, 1, f.notes.count())
}

// ─── Timeouts ─────────────────────────────────────────────────────────────────

func TestDispatcher_DescriptorTimeoutOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		writeJSON(w, map[string]string{"result": "ok"})
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, false)
	f.seedPair(t)

	d := getDescriptor("/chat/message")
	d.Timeout = 50 * time.Millisecond

	startAt := time.Now()
	_, err := f.disp.Do(context.Background(), d)
	require.Error(t, err)
	assert.Less(t, time.Since(startAt), 400*time.Millisecond,
		"the descriptor budget cuts the call short")
}

package game

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/polisbot/internal/domain/account"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/config"
)

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		MinInterval:        time.Millisecond,
		RequestTimeout:     5 * time.Second,
		NetworkBackoff:     time.Millisecond,
		MaxNetworkRetries:  2,
		MaintenanceBackoff: time.Millisecond,
		HealthInterval:     time.Minute,
		HistorySize:        5,
	}
}

func newTestSession(t *testing.T, handler http.Handler) *Session {
	t.Helper()

	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	acct := &account.Account{Email: "bot@example.com", Secret: "secret"}
	session, err := NewSession(
		testSessionConfig(),
		acct,
		strings.TrimPrefix(srv.URL, "https://"),
		account.WorldID{Number: 59, Language: "en"},
		map[string]string{"User-Agent": "test-agent"},
		nil,
	)
	require.NoError(t, err)
	session.SetTransport(srv.Client().Transport)
	return session
}

func TestSessionPost_InjectsFreshToken(t *testing.T) {
	var posted url.Values
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `{"actionRequest":"tok1","currentCityId":"42"}`)
			return
		}
		require.NoError(t, r.ParseForm())
		posted = r.PostForm
		fmt.Fprint(w, `{"actionRequest":"tok2"}`)
	})
	session := newTestSession(t, handler)

	_, err := session.Post(context.Background(), "action=doThing", url.Values{"param": {"1"}}, nil)

	require.NoError(t, err)
	assert.Equal(t, "tok1", posted.Get("actionRequest"), "token from the priming GET must be injected")
	assert.Equal(t, "1", posted.Get("ajax"), "ajax flag is always set")
	assert.Equal(t, "tok2", session.Tokens().CSRF(), "the response token replaces the cache")
	assert.Equal(t, "42", session.CurrentCityID())
}

func TestSessionPost_StaleTokenRetriesOnce(t *testing.T) {
	var posts int32
	var gets int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			n := atomic.AddInt32(&gets, 1)
			fmt.Fprintf(w, `{"actionRequest":"tok%d"}`, n)
			return
		}
		if atomic.AddInt32(&posts, 1) == 1 {
			fmt.Fprint(w, `["provideFeedback",[{"type":"error","text":"WRONG_REQUEST_ID"}]]`)
			return
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "tok2", r.PostForm.Get("actionRequest"), "retry must use a freshly fetched token")
		fmt.Fprint(w, "ok")
	})
	session := newTestSession(t, handler)

	body, err := session.Post(context.Background(), "action=send", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.EqualValues(t, 2, posts, "exactly one retry after a stale token")
}

func TestSessionPost_StaleTwiceFails(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `{"actionRequest":"tok"}`)
			return
		}
		fmt.Fprint(w, "WRONG_REQUEST_ID")
	})
	session := newTestSession(t, handler)

	_, err := session.Post(context.Background(), "action=send", nil, nil)

	var stale *shared.StaleTokenError
	require.Error(t, err)
	assert.True(t, errors.As(err, &stale), "a second stale rejection surfaces, got %v", err)
}

func TestSessionGet_MaintenanceRetries(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, "Backup in progress")
			return
		}
		fmt.Fprint(w, "city page")
	})
	session := newTestSession(t, handler)

	body, err := session.Get(context.Background(), "view=city", nil)

	require.NoError(t, err)
	assert.Equal(t, "city page", body)
	assert.EqualValues(t, 2, calls)
}

func TestSessionGet_ExpiredTriggersReauthOnce(t *testing.T) {
	var loggedIn atomic.Bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !loggedIn.Load() {
			fmt.Fprint(w, `<form name="sessionHasExpired">`)
			return
		}
		fmt.Fprint(w, "welcome back")
	})
	session := newTestSession(t, handler)

	var reauths int
	session.SetReauth(func(ctx context.Context, s *Session) error {
		reauths++
		loggedIn.Store(true)
		return nil
	})

	body, err := session.Get(context.Background(), "view=city", nil)

	require.NoError(t, err)
	assert.Equal(t, "welcome back", body)
	assert.Equal(t, 1, reauths)
}

func TestSessionGet_ExpiredWithoutHookFails(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<body id="loggedOutPage">`)
	})
	session := newTestSession(t, handler)

	_, err := session.Get(context.Background(), "view=city", nil)

	var expired *shared.SessionExpiredError
	require.Error(t, err)
	assert.True(t, errors.As(err, &expired), "got %v", err)
}

func TestSessionGet_IgnoreExpiryReturnsBody(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<body id="loggedOutPage">`)
	})
	session := newTestSession(t, handler)

	body, err := session.Get(context.Background(), "view=updateGlobalData", &Options{IgnoreExpiry: true})

	require.NoError(t, err)
	assert.True(t, IsExpired(body), "the pinger needs the raw expired page")
}

type failingTransport struct{ calls int32 }

func (f *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	return nil, errors.New("connection refused")
}

func TestSessionGet_NetworkRetryCap(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ft := &failingTransport{}
	session.SetTransport(ft)

	_, err := session.Get(context.Background(), "view=city", nil)

	var transient *shared.NetworkTransientError
	require.Error(t, err)
	assert.True(t, errors.As(err, &transient), "got %v", err)
	assert.EqualValues(t, 3, ft.calls, "MaxNetworkRetries=2 allows three total attempts")
}

func TestSessionHistory_Bounded(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	session := newTestSession(t, handler)

	for i := 0; i < 8; i++ {
		_, err := session.Get(context.Background(), fmt.Sprintf("view=page%d", i), nil)
		require.NoError(t, err)
	}

	history := session.History()
	assert.Len(t, history, 5, "ring keeps the configured size")
	assert.Contains(t, history[len(history)-1].URL, "page7", "newest entry last")
}

func TestSnapshotRoundTrip(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	session := newTestSession(t, handler)
	session.SetIdentity("Androkles", "777")
	require.NoError(t, session.ApplyLogin([]*http.Cookie{{Name: "ikariam", Value: "abc"}},
		`{"actionRequest":"tok9","currentCityId":"31"}`))

	snap := session.Serialize()
	restored, err := Restore(snap, testSessionConfig(), nil)

	require.NoError(t, err)
	assert.Equal(t, session.Host(), restored.Host())
	assert.Equal(t, "Androkles", restored.PlayerName())
	assert.Equal(t, "tok9", restored.Tokens().CSRF())
	assert.Equal(t, "31", restored.CurrentCityID())
	assert.False(t, restored.IsParent(), "a restored session is a worker session")

	var names []string
	for _, c := range restored.Cookies() {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "ikariam")
}

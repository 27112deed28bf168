package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/domain/repository"
	"site-gen-ai-api/internal/infrastructure/backend"
	"site-gen-ai-api/pkg/utils"
)

type fakeBackend struct {
	settings    *backend.Settings
	settingsErr error
	exchangeErr error
	user        backend.User
	verifier    string
}

func (f *fakeBackend) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectTo)
	q.Set("code_challenge", codeChallenge)
	return "https://backend.test/auth/v1/authorize?" + q.Encode()
}

func (f *fakeBackend) Settings(ctx context.Context) (*backend.Settings, error) {
	if f.settingsErr != nil {
		return nil, f.settingsErr
	}
	return f.settings, nil
}

func (f *fakeBackend) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*backend.TokenResponse, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	f.verifier = codeVerifier
	return &backend.TokenResponse{AccessToken: "backend-at", User: f.user}, nil
}

type fakeSessions struct {
	mu       sync.Mutex
	states   map[string]*entity.SignInState
	sessions map[string]map[string]bool
	failing  error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		states:   make(map[string]*entity.SignInState),
		sessions: make(map[string]map[string]bool),
	}
}

func (f *fakeSessions) SaveState(ctx context.Context, state *entity.SignInState, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return f.failing
	}
	copied := *state
	f.states[state.State] = &copied
	return nil
}

func (f *fakeSessions) ConsumeState(ctx context.Context, state string) (*entity.SignInState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[state]
	if !ok {
		return nil, repository.ErrStateNotFound
	}
	delete(f.states, state)
	return s, nil
}

func (f *fakeSessions) SaveSession(ctx context.Context, userID, sessionID string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessions[userID] == nil {
		f.sessions[userID] = make(map[string]bool)
	}
	f.sessions[userID][sessionID] = true
	return nil
}

func (f *fakeSessions) IsActive(ctx context.Context, userID, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return false, f.failing
	}
	return f.sessions[userID][sessionID], nil
}

func (f *fakeSessions) RevokeSession(ctx context.Context, userID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions[userID], sessionID)
	return nil
}

func (f *fakeSessions) RevokeUser(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.sessions[userID])
	delete(f.sessions, userID)
	return n, nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []*entity.SessionEvent
}

func (f *fakeBus) Publish(ctx context.Context, event *entity.SessionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type authFixture struct {
	auth     *AuthContext
	backend  *fakeBackend
	sessions *fakeSessions
	bus      *fakeBus
}

func newAuthFixture() *authFixture {
	be := &fakeBackend{
		settings: &backend.Settings{External: map[string]bool{"github": true, "gitlab": false}},
		user:     backend.User{ID: "user-1", Email: "dev@example.com"},
	}
	sessions := newFakeSessions()
	bus := &fakeBus{}
	a := NewAuthContext(Config{
		Providers:              []string{"github", "gitlab"},
		CallbackURL:            "https://api.example.com/auth/callback",
		DefaultRedirect:        "https://app.example.com/",
		AllowedRedirectOrigins: []string{"https://app.example.com"},
		InstanceID:             "instance-a",
	}, be, sessions, utils.NewJWTManager("test-secret", "site-gen"), NewBroker(), bus)
	return &authFixture{auth: a, backend: be, sessions: sessions, bus: bus}
}

func stateFromAuthorizeURL(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse authorize url: %v", err)
	}
	cb, err := url.Parse(u.Query().Get("redirect_to"))
	if err != nil {
		t.Fatalf("parse callback: %v", err)
	}
	if cb.Path != "/auth/callback" {
		t.Fatalf("unexpected callback path %q", cb.Path)
	}
	return cb.Query().Get("state")
}

func TestSignInRejectsUnknownOrDisabledProvider(t *testing.T) {
	f := newAuthFixture()

	for _, provider := range []string{"bitbucket", "gitlab", ""} {
		if _, err := f.auth.SignIn(context.Background(), provider, ""); !errors.Is(err, ErrProviderRejected) {
			t.Fatalf("%q: expected provider rejected, got %v", provider, err)
		}
	}
}

func TestSignInClassifiesBackendFailures(t *testing.T) {
	f := newAuthFixture()

	f.backend.settingsErr = errors.New("dial tcp: connection refused")
	if _, err := f.auth.SignIn(context.Background(), "github", ""); !errors.Is(err, ErrNetworkFailure) {
		t.Fatalf("expected network failure, got %v", err)
	}

	f.backend.settingsErr = &backend.APIError{StatusCode: http.StatusForbidden, Message: "forbidden"}
	if _, err := f.auth.SignIn(context.Background(), "github", ""); !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected provider rejected, got %v", err)
	}
}

func TestSignInStoresStateWithPKCE(t *testing.T) {
	f := newAuthFixture()
	ctx := WithClientKey(context.Background(), "tab-1")

	raw, err := f.auth.SignIn(ctx, "GitHub", "https://evil.example.net/steal")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	state := stateFromAuthorizeURL(t, raw)

	stored := f.sessions.states[state]
	if stored == nil {
		t.Fatalf("state %q not stored", state)
	}
	if stored.Provider != entity.ProviderGitHub || stored.ClientKey != "tab-1" {
		t.Fatalf("unexpected state: %+v", stored)
	}
	if stored.RedirectTo != "https://app.example.com/" {
		t.Fatalf("expected unlisted redirect to fall back, got %q", stored.RedirectTo)
	}

	u, _ := url.Parse(raw)
	if u.Query().Get("code_challenge") != utils.CodeChallengeS256(stored.CodeVerifier) {
		t.Fatalf("code challenge does not match stored verifier")
	}
}

func TestCompleteSignInIssuesSessionAndNotifies(t *testing.T) {
	f := newAuthFixture()
	ctx := WithClientKey(context.Background(), "tab-1")

	var got []*entity.SessionEvent
	sub, err := f.auth.OnSessionChanged(context.Background(), SubscriptionKey{ClientKey: "tab-1"}, func(e *entity.SessionEvent) {
		got = append(got, e)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	raw, err := f.auth.SignIn(ctx, "github", "https://app.example.com/dashboard")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	state := stateFromAuthorizeURL(t, raw)
	verifier := f.sessions.states[state].CodeVerifier

	result, err := f.auth.CompleteSignIn(context.Background(), state, "auth-code")
	if err != nil {
		t.Fatalf("complete sign in: %v", err)
	}
	if f.backend.verifier != verifier {
		t.Fatalf("exchange did not use stored verifier")
	}
	if result.RedirectTo != "https://app.example.com/dashboard" {
		t.Fatalf("unexpected redirect %q", result.RedirectTo)
	}
	if result.Session.Identity.ID != "user-1" || result.Session.Identity.Provider != entity.ProviderGitHub {
		t.Fatalf("unexpected identity %+v", result.Session.Identity)
	}

	if len(got) != 2 || got[0].Type != entity.SessionEventRestored || got[1].Type != entity.SessionEventSignedIn {
		t.Fatalf("unexpected events %+v", got)
	}
	if sub.Identity() == nil || sub.Identity().ID != "user-1" {
		t.Fatalf("subscription identity not updated")
	}
	if len(f.bus.events) != 1 || f.bus.events[0].Origin != "instance-a" {
		t.Fatalf("expected one broadcast with origin, got %+v", f.bus.events)
	}

	if _, err := f.auth.CompleteSignIn(context.Background(), state, "auth-code"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected replayed state to be rejected, got %v", err)
	}
}

func TestCompleteSignInExchangeRejected(t *testing.T) {
	f := newAuthFixture()
	raw, err := f.auth.SignIn(context.Background(), "github", "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	f.backend.exchangeErr = &backend.APIError{StatusCode: http.StatusBadRequest, Code: "bad_code_verifier"}

	_, err = f.auth.CompleteSignIn(context.Background(), stateFromAuthorizeURL(t, raw), "code")
	if !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected provider rejected, got %v", err)
	}
}

func signedInSession(t *testing.T, f *authFixture) *entity.Session {
	t.Helper()
	raw, err := f.auth.SignIn(context.Background(), "github", "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	result, err := f.auth.CompleteSignIn(context.Background(), stateFromAuthorizeURL(t, raw), "code")
	if err != nil {
		t.Fatalf("complete sign in: %v", err)
	}
	return result.Session
}

func TestRestoreAndSignOut(t *testing.T) {
	f := newAuthFixture()
	session := signedInSession(t, f)

	restored, err := f.auth.Restore(context.Background(), session.AccessToken)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	ctx := WithSession(context.Background(), restored)
	if id, ok := f.auth.CurrentIdentity(ctx); !ok || id.ID != "user-1" {
		t.Fatalf("unexpected current identity %+v", id)
	}

	var events []*entity.SessionEvent
	sub, err := f.auth.OnSessionChanged(ctx, SubscriptionKey{}, func(e *entity.SessionEvent) {
		events = append(events, e)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()
	if len(events) != 1 || events[0].Identity == nil {
		t.Fatalf("expected restored event with identity, got %+v", events)
	}

	if err := f.auth.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if len(events) != 2 || events[1].Type != entity.SessionEventSignedOut || events[1].Identity != nil {
		t.Fatalf("expected signed out event, got %+v", events)
	}
	if sub.Identity() != nil {
		t.Fatalf("identity cache should be cleared on sign out")
	}

	if _, err := f.auth.Restore(context.Background(), session.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected revoked session, got %v", err)
	}
}

func TestRestoreRejectsRefreshToken(t *testing.T) {
	f := newAuthFixture()
	session := signedInSession(t, f)

	if _, err := f.auth.Restore(context.Background(), session.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected refresh token to be rejected as access token, got %v", err)
	}
	if _, err := f.auth.Restore(context.Background(), ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected missing token to be rejected, got %v", err)
	}
}

func TestRestoreStoreFailure(t *testing.T) {
	f := newAuthFixture()
	session := signedInSession(t, f)
	f.sessions.failing = errors.New("redis down")

	if _, err := f.auth.Restore(context.Background(), session.AccessToken); !errors.Is(err, ErrNetworkFailure) {
		t.Fatalf("expected network failure, got %v", err)
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	f := newAuthFixture()
	session := signedInSession(t, f)

	rotated, err := f.auth.Refresh(context.Background(), session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.ID == session.ID {
		t.Fatalf("expected new session id")
	}
	if _, err := f.auth.Refresh(context.Background(), session.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected old refresh token to be revoked, got %v", err)
	}
	if _, err := f.auth.Restore(context.Background(), rotated.AccessToken); err != nil {
		t.Fatalf("restore rotated: %v", err)
	}
}

func TestSignOutWithoutSession(t *testing.T) {
	f := newAuthFixture()
	if err := f.auth.SignOut(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestOnSessionChangedRequiresKey(t *testing.T) {
	f := newAuthFixture()
	_, err := f.auth.OnSessionChanged(context.Background(), SubscriptionKey{}, func(*entity.SessionEvent) {})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestSubscriptionReleasedWithContext(t *testing.T) {
	f := newAuthFixture()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := f.auth.OnSessionChanged(ctx, SubscriptionKey{UserID: "user-1"}, func(*entity.SessionEvent) {})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatalf("subscription not released after context cancel")
	}
	if f.auth.broker.Len() != 0 {
		t.Fatalf("expected broker to be empty")
	}
	sub.Cancel()
}

func TestHandleRemoteSkipsOwnOrigin(t *testing.T) {
	f := newAuthFixture()
	var count int
	sub, err := f.auth.OnSessionChanged(context.Background(), SubscriptionKey{UserID: "user-9"}, func(*entity.SessionEvent) {
		count++
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	f.auth.HandleRemote(context.Background(), &entity.SessionEvent{Type: entity.SessionEventSignedOut, UserID: "user-9", Origin: "instance-a"})
	f.auth.HandleRemote(context.Background(), &entity.SessionEvent{Type: entity.SessionEventSignedOut, UserID: "user-9", Origin: "instance-b"})
	f.auth.HandleRemote(context.Background(), &entity.SessionEvent{Type: entity.SessionEventSignedOut, UserID: "user-other", Origin: "instance-b"})

	// 1 次恢复回调 + 1 次远端事件
	if count != 2 {
		t.Fatalf("expected 2 callbacks, got %d", count)
	}
}

func TestEventsBeforeRestoredAreDeliveredAfterIt(t *testing.T) {
	b := NewBroker()
	var got []entity.SessionEventType
	sub := b.Subscribe(SubscriptionKey{UserID: "user-1"}, func(e *entity.SessionEvent) {
		got = append(got, e.Type)
	})
	defer sub.Cancel()

	// 订阅已注册但恢复事件尚未送达时，其他实例的登出事件先到
	if n := b.Dispatch(&entity.SessionEvent{Type: entity.SessionEventSignedOut, UserID: "user-1"}); n != 1 {
		t.Fatalf("expected 1 matched subscriber, got %d", n)
	}
	if len(got) != 0 {
		t.Fatalf("expected event to wait for restored, got %v", got)
	}

	sub.prime(&entity.SessionEvent{
		Type:     entity.SessionEventRestored,
		UserID:   "user-1",
		Identity: &entity.Identity{ID: "user-1"},
	})
	want := []entity.SessionEventType{entity.SessionEventRestored, entity.SessionEventSignedOut}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
	// 最终状态以后到的登出为准
	if sub.Identity() != nil {
		t.Fatalf("expected identity cleared by sign out, got %+v", sub.Identity())
	}

	b.Dispatch(&entity.SessionEvent{Type: entity.SessionEventSignedIn, UserID: "user-1", Identity: &entity.Identity{ID: "user-1"}})
	if len(got) != 3 || got[2] != entity.SessionEventSignedIn {
		t.Fatalf("expected live delivery after restored, got %v", got)
	}
}

func TestAuthErrorIsMatchesWrappedTarget(t *testing.T) {
	err := newError(KindProviderRejected, "CompleteSignIn", errors.New("denied"))
	target := fmt.Errorf("callback: %w", ErrProviderRejected)
	if !errors.Is(err, target) {
		t.Fatalf("expected wrapped sentinel to match")
	}
	if errors.Is(err, fmt.Errorf("callback: %w", ErrNetworkFailure)) {
		t.Fatalf("expected different kind not to match")
	}
	if errors.Is(err, errors.New("provider_rejected")) {
		t.Fatalf("expected non auth error not to match")
	}
}

func TestAuthErrorMessage(t *testing.T) {
	err := newError(KindNetworkFailure, "SignIn", errors.New("boom"))
	if !strings.Contains(err.Error(), "network_failure") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

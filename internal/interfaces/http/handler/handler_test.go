package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"site-gen-ai-api/internal/application/auth"
	"site-gen-ai-api/internal/application/generation"
	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/domain/repository"
	"site-gen-ai-api/internal/domain/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGenerationService struct {
	result    *generation.Result
	err       error
	record    *entity.GenerationRequest
	lastTpl   entity.Template
	lastQuery *repository.GenerationRequestFilter
}

func (f *fakeGenerationService) Submit(ctx context.Context, prompt string, template entity.Template) (*generation.Result, error) {
	f.lastTpl = template
	return f.result, f.err
}

func (f *fakeGenerationService) Get(ctx context.Context, id string) (*entity.GenerationRequest, error) {
	if f.record == nil || f.record.ID != id {
		return nil, repository.NewStoreError(repository.StoreNotFound, "get", nil)
	}
	return f.record, nil
}

func (f *fakeGenerationService) List(ctx context.Context, filter *repository.GenerationRequestFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationRequest], error) {
	f.lastQuery = filter
	items := []*entity.GenerationRequest{}
	if f.record != nil {
		items = append(items, f.record)
	}
	return repository.NewPagedResult(items, int64(len(items)), pagination), nil
}

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return env
}

func generationEngine(svc GenerationService) *gin.Engine {
	h := NewGenerationHandler(svc)
	r := gin.New()
	r.POST("/v1/generations", h.Submit)
	r.GET("/v1/generations", h.List)
	r.GET("/v1/generations/:gid", h.Get)
	return r
}

func submit(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/generations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitSuccess(t *testing.T) {
	svc := &fakeGenerationService{result: &generation.Result{RequestID: "gen-1", URL: "https://demo-abc123.netlify.app"}}
	w := submit(generationEngine(svc), `{"prompt":"Quero um site profissional","template":"portfolio"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if svc.lastTpl != entity.TemplatePortfolio {
		t.Fatalf("template not forwarded: %q", svc.lastTpl)
	}
	env := decode(t, w)
	if !strings.Contains(string(env.Data), "https://demo-abc123.netlify.app") {
		t.Fatalf("expected deploy url in body, got %s", env.Data)
	}
}

func TestSubmitErrorsAreDistinguishable(t *testing.T) {
	timeout := &generation.GenerationError{
		Kind: generation.KindDeploymentFailed,
		Err:  &service.DeployError{Kind: service.DeployTimeout, Provider: "simulated"},
	}
	unavailable := &generation.GenerationError{
		Kind: generation.KindDeploymentFailed,
		Err:  &service.DeployError{Kind: service.DeployProviderUnavailable, Provider: "simulated"},
	}

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unauthenticated", &generation.GenerationError{Kind: generation.KindUnauthenticated}, http.StatusUnauthorized, "1002"},
		{"invalid input", &generation.GenerationError{Kind: generation.KindInvalidInput, Err: entity.ErrPromptRequired}, http.StatusBadRequest, "4002"},
		{"deploy timeout", timeout, http.StatusGatewayTimeout, "5005"},
		{"deploy failed", unavailable, http.StatusBadGateway, "4001"},
		{"storage down", &generation.GenerationError{Kind: generation.KindPersistenceUnavailable}, http.StatusServiceUnavailable, "5006"},
	}

	seen := map[string]string{}
	for _, tc := range cases {
		w := submit(generationEngine(&fakeGenerationService{err: tc.err}), `{"prompt":"x","template":"portfolio"}`)
		if w.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, w.Code)
		}
		env := decode(t, w)
		if env.Code != tc.code {
			t.Fatalf("%s: expected code %s, got %s", tc.name, tc.code, env.Code)
		}
		if prev, dup := seen[env.Message]; dup {
			t.Fatalf("%s and %s share message %q", tc.name, prev, env.Message)
		}
		seen[env.Message] = tc.name
	}
}

func TestSubmitPersistenceInconsistentStillReturnsURL(t *testing.T) {
	svc := &fakeGenerationService{
		result: &generation.Result{RequestID: "gen-2", URL: "https://demo-zzz.netlify.app"},
		err:    &generation.GenerationError{Kind: generation.KindPersistenceInconsistent, RequestID: "gen-2"},
	}
	w := submit(generationEngine(svc), `{"prompt":"x","template":"landing"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "https://demo-zzz.netlify.app") {
		t.Fatalf("url missing from body: %s", w.Body.String())
	}
}

func TestSubmitMalformedBody(t *testing.T) {
	w := submit(generationEngine(&fakeGenerationService{}), `{"prompt":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetGenerationNotFound(t *testing.T) {
	svc := &fakeGenerationService{record: &entity.GenerationRequest{ID: "gen-1", Status: entity.GenerationStatusCompleted}}
	r := generationEngine(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/generations/gen-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/generations/other", nil))
	if w.Code != http.StatusNotFound || decode(t, w).Code != "3001" {
		t.Fatalf("expected generation not found, got %d %s", w.Code, w.Body.String())
	}
}

func TestListGenerationsFilters(t *testing.T) {
	svc := &fakeGenerationService{}
	r := generationEngine(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/generations?status=completed&status=failed&template=business", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(svc.lastQuery.Statuses) != 2 || svc.lastQuery.Template != entity.TemplateBusiness {
		t.Fatalf("unexpected filter %+v", svc.lastQuery)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/generations?status=archived", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}
}

func TestListTemplates(t *testing.T) {
	r := gin.New()
	r.GET("/v1/templates", NewTemplateHandler().ListTemplates)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/templates", nil))

	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 4 || body.Data[0].ID != "portfolio" {
		t.Fatalf("unexpected templates %+v", body.Data)
	}
}

type fakeAuthService struct {
	broker      *auth.Broker
	identity    *entity.Identity
	signInErr   error
	result      *auth.SignInResult
	completeErr error
	clientKey   string
}

func (f *fakeAuthService) CurrentIdentity(ctx context.Context) (*entity.Identity, bool) {
	return f.identity, f.identity != nil
}

func (f *fakeAuthService) SignIn(ctx context.Context, provider, redirectTo string) (string, error) {
	if f.signInErr != nil {
		return "", f.signInErr
	}
	return "https://backend.test/auth/v1/authorize?provider=" + provider, nil
}

func (f *fakeAuthService) CompleteSignIn(ctx context.Context, state, code string) (*auth.SignInResult, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return f.result, nil
}

func (f *fakeAuthService) Refresh(ctx context.Context, refreshToken string) (*entity.Session, error) {
	if refreshToken != "rt-1" {
		return nil, auth.ErrUnauthenticated
	}
	return &entity.Session{ID: "s2", AccessToken: "at-2", RefreshToken: "rt-2", Identity: entity.Identity{ID: "user-1"}}, nil
}

func (f *fakeAuthService) SignOut(ctx context.Context) error {
	if f.identity == nil {
		return auth.ErrUnauthenticated
	}
	return nil
}

func (f *fakeAuthService) OnSessionChanged(ctx context.Context, key auth.SubscriptionKey, callback func(*entity.SessionEvent)) (*auth.Subscription, error) {
	f.clientKey = key.ClientKey
	sub := f.broker.Subscribe(key, callback)
	callback(&entity.SessionEvent{Type: entity.SessionEventRestored, Identity: f.identity})
	return sub, nil
}

func authEngine(svc AuthService, cfg AuthHandlerConfig) *gin.Engine {
	h := NewAuthHandler(svc, cfg)
	r := gin.New()
	r.GET("/v1/auth/signin/:provider", h.SignIn)
	r.GET("/auth/callback", h.Callback)
	r.POST("/v1/auth/refresh", h.Refresh)
	r.POST("/v1/auth/signout", h.SignOut)
	r.GET("/v1/auth/session", h.Session)
	r.GET("/v1/auth/session/stream", h.StreamSession)
	return r
}

func TestSignInRedirectsOrReturnsJSON(t *testing.T) {
	r := authEngine(&fakeAuthService{broker: auth.NewBroker()}, AuthHandlerConfig{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/auth/signin/github", nil))
	if w.Code != http.StatusFound || !strings.Contains(w.Header().Get("Location"), "provider=github") {
		t.Fatalf("expected redirect, got %d %q", w.Code, w.Header().Get("Location"))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/auth/signin/github?mode=json", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "authorize_url") {
		t.Fatalf("expected json, got %d %s", w.Code, w.Body.String())
	}
}

func TestSignInErrors(t *testing.T) {
	cases := map[error]int{
		auth.ErrProviderRejected: http.StatusForbidden,
		auth.ErrNetworkFailure:   http.StatusBadGateway,
	}
	for err, status := range cases {
		r := authEngine(&fakeAuthService{broker: auth.NewBroker(), signInErr: err}, AuthHandlerConfig{})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/auth/signin/bitbucket", nil))
		if w.Code != status {
			t.Fatalf("%v: expected %d, got %d", err, status, w.Code)
		}
	}
}

func TestCallbackSetsCookieAndFragment(t *testing.T) {
	svc := &fakeAuthService{
		broker: auth.NewBroker(),
		result: &auth.SignInResult{
			RedirectTo: "https://app.example.com/dashboard#stale",
			Session: &entity.Session{
				ID:              "s1",
				AccessToken:     "at-1",
				RefreshToken:    "rt-1",
				AccessExpiresAt: time.Unix(1700000000, 0),
			},
		},
	}
	r := authEngine(svc, AuthHandlerConfig{RefreshCookieName: "sg_refresh"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?state=s&code=c", nil))
	if w.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", w.Code)
	}

	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if loc.Host != "app.example.com" || loc.Path != "/dashboard" {
		t.Fatalf("unexpected location %s", loc)
	}
	fragment, _ := url.ParseQuery(loc.Fragment)
	if fragment.Get("access_token") != "at-1" || fragment.Get("expires_at") != "1700000000" {
		t.Fatalf("unexpected fragment %q", loc.Fragment)
	}

	cookie := w.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, "sg_refresh=rt-1") || !strings.Contains(cookie, "HttpOnly") {
		t.Fatalf("unexpected cookie %q", cookie)
	}
}

func TestCallbackFailureRedirectsWithError(t *testing.T) {
	svc := &fakeAuthService{broker: auth.NewBroker(), completeErr: auth.ErrUnauthenticated}
	r := authEngine(svc, AuthHandlerConfig{DefaultRedirect: "https://app.example.com/"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?state=replayed&code=c", nil))
	loc := w.Header().Get("Location")
	if w.Code != http.StatusFound || !strings.HasPrefix(loc, "https://app.example.com/#error=1002") {
		t.Fatalf("unexpected failure redirect %d %q", w.Code, loc)
	}

	r = authEngine(svc, AuthHandlerConfig{})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without default redirect, got %d", w.Code)
	}
}

func TestRefreshFromCookieOrBody(t *testing.T) {
	r := authEngine(&fakeAuthService{broker: auth.NewBroker()}, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "rt-1"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "at-2") {
		t.Fatalf("cookie refresh failed: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", strings.NewReader(`{"refresh_token":"rt-1"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("body refresh failed: %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", strings.NewReader(`{"refresh_token":"stale"}`)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for stale token, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil))
	if w.Code != http.StatusUnauthorized || decode(t, w).Code != "2003" {
		t.Fatalf("expected token missing, got %d %s", w.Code, w.Body.String())
	}
}

func TestSignOutClearsCookie(t *testing.T) {
	r := authEngine(&fakeAuthService{broker: auth.NewBroker(), identity: &entity.Identity{ID: "user-1"}}, AuthHandlerConfig{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/auth/signout", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Fatalf("expected cookie to be cleared, got %q", w.Header().Get("Set-Cookie"))
	}
}

func TestSessionState(t *testing.T) {
	r := authEngine(&fakeAuthService{broker: auth.NewBroker()}, AuthHandlerConfig{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/auth/session", nil))
	if !strings.Contains(w.Body.String(), `"authenticated":false`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestStreamSessionPushesRestoredEvent(t *testing.T) {
	svc := &fakeAuthService{broker: auth.NewBroker(), identity: &entity.Identity{ID: "user-1", Email: "u@example.com"}}
	r := authEngine(svc, AuthHandlerConfig{KeepAlive: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/session/stream?client_key=tab-1", nil).WithContext(ctx)
	w := newStreamRecorder()
	r.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event:session") || !strings.Contains(body, "user-1") {
		t.Fatalf("expected restored session event, got %q", body)
	}
	if svc.clientKey != "tab-1" {
		t.Fatalf("client key not forwarded")
	}
	if svc.broker.Len() != 0 {
		t.Fatalf("subscription must be released when the stream ends")
	}
}

// streamRecorder gin 的 c.Stream 需要 http.CloseNotifier
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
}

func (r *streamRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func TestStreamSessionOutlivesServerWriteTimeout(t *testing.T) {
	svc := &fakeAuthService{broker: auth.NewBroker(), identity: &entity.Identity{ID: "user-1"}}
	srv := httptest.NewUnstartedServer(authEngine(svc, AuthHandlerConfig{KeepAlive: 20 * time.Millisecond}))
	srv.Config.WriteTimeout = 100 * time.Millisecond
	srv.Start()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/auth/session/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	start := time.Now()
	body, _ := io.ReadAll(resp.Body)
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Fatalf("stream closed after %s, before the client gave up", elapsed)
	}
	if got := strings.Count(string(body), "event:ping"); got < 10 {
		t.Fatalf("expected keep-alives beyond the write timeout, got %d", got)
	}
}

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(ctx context.Context) error { return s.err }

func TestReady(t *testing.T) {
	cases := []struct {
		name     string
		checkers []NamedChecker
		status   int
	}{
		{"all ok", []NamedChecker{{Name: "postgres", Checker: stubChecker{}}, {Name: "redis", Checker: stubChecker{}}}, http.StatusOK},
		{"required down", []NamedChecker{{Name: "postgres", Checker: stubChecker{err: errors.New("down")}}}, http.StatusServiceUnavailable},
		{"optional down", []NamedChecker{{Name: "backend", Checker: stubChecker{err: errors.New("down")}, Optional: true}}, http.StatusOK},
		{"missing", []NamedChecker{{Name: "redis"}}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		r := gin.New()
		r.GET("/ready", NewHealthHandler("test", tc.checkers...).Ready)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		if w.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, w.Code)
		}
	}
}

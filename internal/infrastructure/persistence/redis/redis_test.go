package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/domain/repository"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Client{rdb: rdb, addr: mr.Addr()}, mr
}

// stubStore 记录回源次数的仓储
type stubStore struct {
	mu        sync.Mutex
	record    *entity.GenerationRequest
	gets      int
	updateErr error
}

func (s *stubStore) Create(ctx context.Context, ownerID, prompt string, template entity.Template) (string, error) {
	return "", errors.New("not used")
}

func (s *stubStore) UpdateStatus(ctx context.Context, change *entity.StatusChange) error {
	return s.updateErr
}

func (s *stubStore) Get(ctx context.Context, ownerID, id string) (*entity.GenerationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.record == nil || s.record.OwnerID != ownerID || s.record.ID != id {
		return nil, repository.ErrNotFound
	}
	out := *s.record
	return &out, nil
}

func (s *stubStore) ListByOwner(ctx context.Context, ownerID string, filter *repository.GenerationRequestFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationRequest], error) {
	return repository.NewPagedResult([]*entity.GenerationRequest{}, 0, pagination), nil
}

func (s *stubStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func generationRecord(status entity.GenerationStatus) *entity.GenerationRequest {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	req := &entity.GenerationRequest{
		ID:        "gen-1",
		OwnerID:   "user-1",
		Prompt:    "Quero um site profissional",
		Template:  entity.TemplatePortfolio,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == entity.GenerationStatusCompleted {
		req.DeployURL = "https://demo-x1y2z3.netlify.app"
		req.CompletedAt = &now
	}
	return req
}

func TestCachedRepositoryCachesOnlyTerminalRecords(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	store := &stubStore{record: generationRecord(entity.GenerationStatusProcessing)}
	repo := NewCachedGenerationRequestRepository(store, NewCache(client), time.Minute)
	key := GenerationCacheKey("user-1", "gen-1")

	for i := 0; i < 2; i++ {
		if _, err := repo.Get(ctx, "user-1", "gen-1"); err != nil {
			t.Fatalf("get processing: %v", err)
		}
	}
	if store.getCount() != 2 || mr.Exists(key) {
		t.Fatalf("processing record must not be cached, store gets=%d", store.getCount())
	}

	store.record = generationRecord(entity.GenerationStatusCompleted)
	for i := 0; i < 3; i++ {
		got, err := repo.Get(ctx, "user-1", "gen-1")
		if err != nil {
			t.Fatalf("get completed: %v", err)
		}
		if got.Status != entity.GenerationStatusCompleted || got.DeployURL == "" {
			t.Fatalf("unexpected record %+v", got)
		}
	}
	if store.getCount() != 3 {
		t.Fatalf("completed record should be served from cache, store gets=%d", store.getCount())
	}
	if !mr.Exists(key) || mr.TTL(key) != time.Minute {
		t.Fatalf("expected cached entry with ttl, ttl=%v", mr.TTL(key))
	}
}

func TestCachedRepositoryInvalidatesOnFailedUpdate(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	store := &stubStore{record: generationRecord(entity.GenerationStatusCompleted)}
	repo := NewCachedGenerationRequestRepository(store, NewCache(client), time.Minute)
	key := GenerationCacheKey("user-1", "gen-1")

	if _, err := repo.Get(ctx, "user-1", "gen-1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !mr.Exists(key) {
		t.Fatalf("expected entry to be cached")
	}

	store.updateErr = repository.ErrInvalidTransition
	err := repo.UpdateStatus(ctx, &entity.StatusChange{RequestID: "gen-1", OwnerID: "user-1", Status: entity.GenerationStatusFailed})
	if !errors.Is(err, repository.ErrInvalidTransition) {
		t.Fatalf("expected store error to pass through, got %v", err)
	}
	if mr.Exists(key) {
		t.Fatalf("cache entry must be dropped even when the update fails")
	}
}

func TestCachedRepositoryFallsBackWhenRedisFails(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	store := &stubStore{record: generationRecord(entity.GenerationStatusCompleted)}
	repo := NewCachedGenerationRequestRepository(store, NewCache(client), time.Minute)

	mr.SetError("LOADING redis is loading the dataset in memory")
	got, err := repo.Get(ctx, "user-1", "gen-1")
	if err != nil {
		t.Fatalf("expected fallback to store, got %v", err)
	}
	if got.ID != "gen-1" || store.getCount() != 1 {
		t.Fatalf("unexpected fallback result %+v gets=%d", got, store.getCount())
	}

	// 回源的业务错误不被当作缓存故障
	mr.SetError("")
	if _, err := repo.Get(ctx, "intruder", "gen-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCacheFetchReportsCacheError(t *testing.T) {
	client, mr := newTestClient(t)
	mr.SetError("ERR injected")

	var dst string
	err := NewCache(client).Fetch(context.Background(), "k", time.Minute, &dst, func(ctx context.Context) (any, bool, error) {
		return "v", true, nil
	})
	var cacheErr *CacheError
	if !errors.As(err, &cacheErr) || cacheErr.Op != "get" {
		t.Fatalf("expected cache get error, got %v", err)
	}
}

func TestConsumeStateIsOneShot(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	store := NewSessionStore(client)

	state := &entity.SignInState{
		State:        "st-1",
		Provider:     entity.ProviderGitHub,
		RedirectTo:   "https://app.example.com/",
		CodeVerifier: "verifier",
	}
	if err := store.SaveState(ctx, state, 10*time.Minute); err != nil {
		t.Fatalf("save state: %v", err)
	}
	if ttl := mr.TTL(stateKey("st-1")); ttl != 10*time.Minute {
		t.Fatalf("unexpected state ttl %v", ttl)
	}

	got, err := store.ConsumeState(ctx, "st-1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got.CodeVerifier != "verifier" || got.Provider != entity.ProviderGitHub {
		t.Fatalf("unexpected state %+v", got)
	}
	if mr.Exists(stateKey("st-1")) {
		t.Fatalf("state must be deleted on first consume")
	}
	if _, err := store.ConsumeState(ctx, "st-1"); !errors.Is(err, repository.ErrStateNotFound) {
		t.Fatalf("expected second consume to fail, got %v", err)
	}
}

func TestConsumeStateExpired(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	store := NewSessionStore(client)

	if err := store.SaveState(ctx, &entity.SignInState{State: "st-2"}, time.Minute); err != nil {
		t.Fatalf("save state: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := store.ConsumeState(ctx, "st-2"); !errors.Is(err, repository.ErrStateNotFound) {
		t.Fatalf("expected expired state to be missing, got %v", err)
	}
}

func TestSessionWhitelistRevocation(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	store := NewSessionStore(client)

	for _, sid := range []string{"s1", "s2"} {
		if err := store.SaveSession(ctx, "user-1", sid, time.Hour); err != nil {
			t.Fatalf("save session: %v", err)
		}
	}
	if err := store.RevokeSession(ctx, "user-1", "s1"); err != nil {
		t.Fatalf("revoke session: %v", err)
	}
	if ok, _ := store.IsActive(ctx, "user-1", "s1"); ok {
		t.Fatalf("revoked session still active")
	}
	if ok, _ := store.IsActive(ctx, "user-1", "s2"); !ok {
		t.Fatalf("other session should stay active")
	}
	n, err := store.RevokeUser(ctx, "user-1")
	if err != nil || n != 1 {
		t.Fatalf("revoke user: n=%d err=%v", n, err)
	}
	if ok, _ := store.IsActive(ctx, "user-1", "s2"); ok {
		t.Fatalf("session active after user revocation")
	}
}

func TestRateLimiterBoundary(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(client)
	limiter.now = func() time.Time { return now }
	key := BuildUserRateLimitKey("user-1", "generations")

	for want := 2; want >= 0; want-- {
		allowed, remaining, err := limiter.Allow(ctx, key, 3, time.Minute)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !allowed || remaining != want {
			t.Fatalf("expected allowed with %d remaining, got %v %d", want, allowed, remaining)
		}
	}
	allowed, remaining, err := limiter.Allow(ctx, key, 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed || remaining != 0 {
		t.Fatalf("fourth request must be denied, got %v %d", allowed, remaining)
	}

	// 窗口滑过后重新放行
	now = now.Add(time.Minute + time.Millisecond)
	if allowed, remaining, _ := limiter.Allow(ctx, key, 3, time.Minute); !allowed || remaining != 2 {
		t.Fatalf("expected fresh window, got %v %d", allowed, remaining)
	}

	// 不同主体互不影响
	other := BuildUserRateLimitKey("ip:10.0.0.1", "generations")
	if allowed, _, _ := limiter.Allow(ctx, other, 3, time.Minute); !allowed {
		t.Fatalf("other subject should not be limited")
	}
}

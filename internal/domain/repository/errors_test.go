package repository

import (
	"errors"
	"fmt"
	"testing"
)

func TestStoreErrorMatchesByKind(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("create: %w", NewStoreError(StoreUnavailable, "create", cause))

	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable kind to match")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("unavailable must not match not found")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause should stay reachable")
	}

	var storeErr *StoreError
	if !errors.As(err, &storeErr) || storeErr.Op != "create" {
		t.Fatalf("expected StoreError detail, got %#v", storeErr)
	}
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 500)
	if p.Page != 1 || p.PageSize != 100 || p.Offset() != 0 {
		t.Fatalf("unexpected clamp: %+v", p)
	}
	r := NewPagedResult([]int{1, 2}, 41, NewPagination(3, 20))
	if r.TotalPages != 3 || r.HasMore() {
		t.Fatalf("expected last of 3 pages, got %+v", r)
	}
	if !NewPagedResult([]int{1}, 41, NewPagination(1, 20)).HasMore() {
		t.Fatal("first page of 41 items should have more")
	}
	if PageCount(0, 20) != 0 {
		t.Fatal("empty result should have no pages")
	}
}

package cache

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/errand/internal/model"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemory[string, int](time.Minute, clock)

	if err := c.Set(ctx, "a", 1); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok, _ := c.Get(ctx, "a"); !ok || v != 1 {
		t.Errorf("get = %d, %v", v, ok)
	}

	clock.now = clock.now.Add(59 * time.Second)
	if _, ok, _ := c.Get(ctx, "a"); !ok {
		t.Error("expired early")
	}

	clock.now = clock.now.Add(time.Second)
	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Error("expected expiry at ttl")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not evicted, len = %d", c.Len())
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[string, string](time.Hour, nil)
	c.Set(ctx, "k", "v")
	c.Delete(ctx, "k")
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("deleted key still present")
	}
}

type countingUsers struct {
	calls int
	users map[string]*model.User
}

func (c *countingUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	c.calls++
	return c.users[id], nil
}

func TestProfilesReadThrough(t *testing.T) {
	ctx := context.Background()
	users := &countingUsers{users: map[string]*model.User{"u1": {ID: "u1", Name: "Ada"}}}
	p := NewProfiles(NewMemory[string, model.Profile](time.Minute, nil), users, slog.Default())

	for range 3 {
		prof, err := p.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if prof.Name != "Ada" {
			t.Errorf("name = %q, want Ada", prof.Name)
		}
	}
	if users.calls != 1 {
		t.Errorf("store calls = %d, want 1", users.calls)
	}

	p.Invalidate(ctx, "u1")
	p.Get(ctx, "u1")
	if users.calls != 2 {
		t.Errorf("store calls after invalidate = %d, want 2", users.calls)
	}

	prof, _ := p.Get(ctx, "ghost")
	if prof.Name != "Someone" {
		t.Errorf("placeholder = %q", prof.Name)
	}
}

package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		UserID: "u-1",
		Guest:  true,
		Role:   "admin",
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != "u-1" {
		t.Errorf("UserID = %q, want u-1", got.UserID)
	}
	if !got.Guest {
		t.Error("Guest = false, want true")
	}
	if got.Role != "admin" {
		t.Errorf("Role = %q, want %q", got.Role, "admin")
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestUserID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: "u-7"})
	if UserID(ctx) != "u-7" {
		t.Errorf("UserID = %q, want u-7", UserID(ctx))
	}
	if UserID(context.Background()) != "" {
		t.Error("expected empty for missing context")
	}
}

func TestIsMember(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want bool
	}{
		{"member", WithAuth(context.Background(), AuthContext{UserID: "u"}), true},
		{"guest", WithAuth(context.Background(), AuthContext{UserID: "u", Guest: true}), false},
		{"empty id", WithAuth(context.Background(), AuthContext{}), false},
		{"missing", context.Background(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMember(tt.ctx); got != tt.want {
				t.Errorf("IsMember = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsAdmin(t *testing.T) {
	if !IsAdmin(WithAuth(context.Background(), AuthContext{Role: "admin"})) {
		t.Error("expected IsAdmin = true for admin role")
	}
	if IsAdmin(WithAuth(context.Background(), AuthContext{Role: "member"})) {
		t.Error("expected IsAdmin = false for member role")
	}
	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin = false for missing context")
	}
}

package push

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/errand/internal/model"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{0, 100, nil},
		{1, 100, []int{1}},
		{100, 100, []int{100}},
		{101, 100, []int{100, 1}},
		{250, 100, []int{100, 100, 50}},
		{5, 0, []int{5}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.n, tt.size), func(t *testing.T) {
			items := make([]int, tt.n)
			chunks := Chunk(items, tt.size)
			if len(chunks) != len(tt.want) {
				t.Fatalf("chunks = %d, want %d", len(chunks), len(tt.want))
			}
			for i, c := range chunks {
				if len(c) != tt.want[i] {
					t.Errorf("chunk %d len = %d, want %d", i, len(c), tt.want[i])
				}
			}
		})
	}
}

type fakeSender struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeSender) Send(_ context.Context, sub *model.PushSubscription, _ Payload) error {
	f.mu.Lock()
	f.calls = append(f.calls, sub.Endpoint)
	f.mu.Unlock()
	switch {
	case strings.HasSuffix(sub.Endpoint, "/gone"):
		return ErrExpired
	case strings.HasSuffix(sub.Endpoint, "/fail"):
		return errors.New("push service returned 500")
	}
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSendBatch(t *testing.T) {
	subs := []model.PushSubscription{
		{Endpoint: "https://push.example.com/ok1"},
		{Endpoint: "https://push.example.com/gone"},
		{Endpoint: "https://push.example.com/fail"},
		{Endpoint: "https://push.example.com/ok2"},
	}
	sender := &fakeSender{}

	res := SendBatch(context.Background(), sender, subs, Payload{Title: "t"})
	if res.Sent != 2 || res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Expired) != 1 || res.Expired[0] != "https://push.example.com/gone" {
		t.Errorf("expired = %v", res.Expired)
	}
	if sender.count() != 4 {
		t.Errorf("calls = %d, want 4", sender.count())
	}
}

type fakeSubStore struct {
	mu      sync.Mutex
	subs    map[string][]model.PushSubscription
	deleted []string
}

func (f *fakeSubStore) ListByUser(_ context.Context, userID string) ([]model.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[userID], nil
}

func (f *fakeSubStore) DeleteByEndpoint(_ context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, endpoint)
	return nil
}

func (f *fakeSubStore) deletedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

func TestDispatcherDeliversAndPrunes(t *testing.T) {
	var many []model.PushSubscription
	for i := range 150 {
		many = append(many, model.PushSubscription{Endpoint: fmt.Sprintf("https://push.example.com/%d", i)})
	}
	subs := &fakeSubStore{subs: map[string][]model.PushSubscription{
		"a": many,
		"b": {{Endpoint: "https://push.example.com/gone"}},
	}}
	sender := &fakeSender{}

	d := NewDispatcher(sender, subs, slog.Default())
	d.Start(context.Background())
	defer d.Stop()

	if !d.Enqueue([]string{"a", "b"}, Payload{Title: "hello"}) {
		t.Fatal("enqueue rejected")
	}

	deadline := time.After(2 * time.Second)
	for subs.deletedCount() == 0 || sender.count() < 151 {
		select {
		case <-deadline:
			t.Fatalf("timeout: sent %d, deleted %d", sender.count(), subs.deletedCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	snap := d.Stats().Snapshot()
	if snap.Sent != 150 || snap.Expired != 1 {
		t.Errorf("stats = %+v", snap)
	}
}

func TestDispatcherEnqueueEmpty(t *testing.T) {
	d := NewDispatcher(&fakeSender{}, &fakeSubStore{}, slog.Default())
	if !d.Enqueue(nil, Payload{}) {
		t.Error("empty enqueue should be a no-op success")
	}
}

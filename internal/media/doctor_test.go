package media

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProber struct {
	doctorFn func(ctx context.Context) (*Capabilities, error)
}

func (f *fakeProber) RunDoctor(ctx context.Context) (*Capabilities, error) {
	return f.doctorFn(ctx)
}

func TestCachedDoctor_TTL(t *testing.T) {
	calls := 0
	fake := &fakeProber{
		doctorFn: func(ctx context.Context) (*Capabilities, error) {
			calls++
			return &Capabilities{CanRender: true, ProbedAt: time.Now()}, nil
		},
	}

	doc := NewCachedDoctor(fake, nil)
	doc.ttl = 100 * time.Millisecond
	ctx := context.Background()

	caps1, err := doc.Get(ctx)
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if !caps1.CanRender {
		t.Error("expected CanRender=true")
	}

	caps2, err := doc.Get(ctx)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if caps2.ProbedAt != caps1.ProbedAt {
		t.Error("expected cached result on second call")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (cached), got %d", calls)
	}

	time.Sleep(150 * time.Millisecond)

	if _, err := doc.Get(ctx); err != nil {
		t.Fatalf("third Get (after TTL): %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls after TTL expiry, got %d", calls)
	}
}

func TestCachedDoctor_Invalidate(t *testing.T) {
	calls := 0
	fake := &fakeProber{
		doctorFn: func(ctx context.Context) (*Capabilities, error) {
			calls++
			return &Capabilities{ProbedAt: time.Now()}, nil
		},
	}

	doc := NewCachedDoctor(fake, nil)
	ctx := context.Background()

	doc.Get(ctx)
	doc.Invalidate()
	if doc.Peek() != nil {
		t.Error("expected empty cache after Invalidate")
	}
	doc.Get(ctx)
	if calls != 2 {
		t.Errorf("expected 2 calls after Invalidate, got %d", calls)
	}
}

func TestCachedDoctor_StaleOnFailure(t *testing.T) {
	fail := false
	fake := &fakeProber{
		doctorFn: func(ctx context.Context) (*Capabilities, error) {
			if fail {
				return nil, errors.New("boom")
			}
			return &Capabilities{CanRender: true, ProbedAt: time.Now()}, nil
		},
	}

	doc := NewCachedDoctor(fake, nil)
	ctx := context.Background()

	if _, err := doc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	fail = true
	caps, err := doc.Refresh(ctx)
	if err != nil {
		t.Fatalf("expected stale cache, got error %v", err)
	}
	if !caps.CanRender {
		t.Error("expected stale capabilities")
	}

	doc.Invalidate()
	if _, err := doc.Refresh(ctx); err == nil {
		t.Error("expected error with empty cache")
	}
}

package chromedp

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"
)

func TestNewLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{MaxParallel: -1}, zap.NewNop()); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	client, err := New(Config{MaxParallel: 2}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()
	if cap(client.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(client.limiter))
	}
}

func TestAcquireHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	client := &Client{limiter: make(chan struct{}, 1)}
	client.limiter <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.acquire(ctx); err == nil {
		t.Fatal("expected error when no slot frees before cancellation")
	}
}

func TestResponseMetaCapturesDocumentStatus(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404},
	})
	if got := meta.statusOr(http.StatusOK); got != http.StatusOK {
		t.Fatalf("subresource status leaked: %d", got)
	}

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404},
	})
	if got := meta.statusOr(http.StatusOK); got != 404 {
		t.Fatalf("expected document status 404, got %d", got)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	if got := classify(context.DeadlineExceeded); got != "request timed out" {
		t.Fatalf("unexpected classification: %s", got)
	}
	if got := classify(context.Canceled); got != "request canceled" {
		t.Fatalf("unexpected classification: %s", got)
	}
}

func TestContextWithDeadlineFrom(t *testing.T) {
	t.Parallel()

	src, cancelSrc := context.WithTimeout(context.Background(), time.Minute)
	defer cancelSrc()

	ctx, cancel := contextWithDeadlineFrom(context.Background(), src)
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatal("expected deadline to be applied")
	}

	ctx, cancel = contextWithDeadlineFrom(context.Background(), context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Fatal("expected no deadline")
	}
}

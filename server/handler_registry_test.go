package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dotside-studios/nfc-juke/protocol"
)

func mockHandlerFunc(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
	return nil
}

func TestHandlerRegistry_Handle(t *testing.T) {
	registry := NewHandlerRegistry()

	t.Run("register valid handler", func(t *testing.T) {
		if err := registry.Handle("test", mockHandlerFunc); err != nil {
			t.Fatalf("failed to register handler: %v", err)
		}
	})

	t.Run("register nil handler", func(t *testing.T) {
		if err := registry.Handle("nil", nil); err == nil {
			t.Fatal("expected error when registering nil handler")
		}
	})

	t.Run("register handler with empty message type", func(t *testing.T) {
		if err := registry.Handle("", mockHandlerFunc); err == nil {
			t.Fatal("expected error when registering handler with empty message type")
		}
	})

	t.Run("register duplicate handler", func(t *testing.T) {
		if err := registry.Handle("duplicate", mockHandlerFunc); err != nil {
			t.Fatalf("failed to register first handler: %v", err)
		}
		if err := registry.Handle("duplicate", mockHandlerFunc); err == nil {
			t.Fatal("expected error when registering duplicate handler")
		}
	})
}

func TestHandlerRegistry_Get(t *testing.T) {
	registry := NewHandlerRegistry()
	_ = registry.Handle("test", mockHandlerFunc)

	if h, ok := registry.Get("test"); !ok || h == nil {
		t.Fatal("handler not found")
	}
	if _, ok := registry.Get("nonexistent"); ok {
		t.Fatal("expected handler not to be found")
	}
}

func TestHandlerRegistry_MessageTypes(t *testing.T) {
	registry := NewHandlerRegistry()
	if types := registry.MessageTypes(); len(types) != 0 {
		t.Fatalf("expected 0 message types, got %d", len(types))
	}

	_ = registry.Handle("type2", mockHandlerFunc)
	_ = registry.Handle("type1", mockHandlerFunc)
	_ = registry.Handle("type3", mockHandlerFunc)

	got := fmt.Sprint(registry.MessageTypes())
	if got != "[type1 type2 type3]" {
		t.Fatalf("MessageTypes() = %s", got)
	}
}

func TestHandlerRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewHandlerRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = registry.Handle(fmt.Sprintf("concurrent-%d", i), mockHandlerFunc)
		}(i)
		go func(i int) {
			defer wg.Done()
			registry.Get(fmt.Sprintf("concurrent-%d", i))
		}(i)
	}
	wg.Wait()

	if n := len(registry.MessageTypes()); n != 50 {
		t.Fatalf("expected 50 handlers, got %d", n)
	}
}

func TestHandlerRegistry_HandleExecution(t *testing.T) {
	registry := NewHandlerRegistry()
	expectedErr := errors.New("test error")
	_ = registry.Handle("error", func(ctx context.Context, c *Client, req protocol.WebSocketRequest) error {
		return expectedErr
	})

	h, _ := registry.Get("error")
	if err := h(context.Background(), nil, protocol.WebSocketRequest{}); err != expectedErr {
		t.Fatalf("expected error %v, got %v", expectedErr, err)
	}
}

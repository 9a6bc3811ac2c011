package logging

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCategoryField(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	Get(CategoryPaths).Info("inserted %d paths", 3)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "inserted 3 paths" {
		t.Errorf("unexpected message: %q", entries[0].Message)
	}
	fields := entries[0].ContextMap()
	if fields["category"] != "paths" {
		t.Errorf("expected category=paths, got %v", fields["category"])
	}
}

func TestWithCarriesContext(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	Get(CategoryEdges).With("op_id", "abc123").Debug("resolving nodes")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["op_id"] != "abc123" {
		t.Errorf("op_id not carried: %v", entries[0].ContextMap())
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	SetLogger(nil)
	// Must not panic.
	Store("store message %d", 1)
	StoreDebug("debug message")
	StartTimer(CategoryStore, "op").Stop()
}

func TestTimerLogsDuration(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	timer := StartTimer(CategoryQuery, "Roots")
	time.Sleep(time.Millisecond)
	timer.Stop()

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["category"] != "query" {
		t.Errorf("expected category=query, got %v", entries[0].ContextMap())
	}
}

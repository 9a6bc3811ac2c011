package store

import (
	"errors"
	"testing"

	"github.com/jwilger/dagex/internal/pathseq"
)

func TestInsertEdgePathsSubsumesChildChains(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	a := mustRegister(t, s, "widget", "a")
	b := mustRegister(t, s, "widget", "b")

	mustInsertEdge(t, s, "widget", a, b)

	// b's standalone trivial chain is replaced by the parent-relative path.
	got := pathSet(t, s, "widget")
	want := encoded(pathseq.Seq{a}, pathseq.Seq{a, b})
	if !equalSets(got, want) {
		t.Errorf("Path set = %v, want %v", got, want)
	}
}

func TestInsertEdgePathsExtendsWholeSubtree(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	// b -> c exists first; attaching a -> b must rewrite c's ancestry too.
	a := mustRegister(t, s, "widget", "a")
	b := mustRegister(t, s, "widget", "b")
	c := mustRegister(t, s, "widget", "c")
	mustInsertEdge(t, s, "widget", b, c)
	mustInsertEdge(t, s, "widget", a, b)

	got := pathSet(t, s, "widget")
	want := encoded(
		pathseq.Seq{a},
		pathseq.Seq{a, b},
		pathseq.Seq{a, b, c},
	)
	if !equalSets(got, want) {
		t.Errorf("Path set = %v, want %v", got, want)
	}
}

func TestInsertEdgePathsIdempotent(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	a := mustRegister(t, s, "widget", "a")
	b := mustRegister(t, s, "widget", "b")

	mustInsertEdge(t, s, "widget", a, b)
	before := pathSet(t, s, "widget")

	mustInsertEdge(t, s, "widget", a, b)
	after := pathSet(t, s, "widget")

	if !equalSets(before, after) {
		t.Errorf("Second insert changed the path set: %v -> %v", before, after)
	}
}

func TestInsertEdgePathsDiamondFanIn(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	// a -> b, a -> c, b -> d, c -> d
	a := mustRegister(t, s, "widget", "a")
	b := mustRegister(t, s, "widget", "b")
	c := mustRegister(t, s, "widget", "c")
	d := mustRegister(t, s, "widget", "d")
	mustInsertEdge(t, s, "widget", a, b)
	mustInsertEdge(t, s, "widget", a, c)
	mustInsertEdge(t, s, "widget", b, d)
	mustInsertEdge(t, s, "widget", c, d)

	paths, err := s.PathsEndingAt("widget", d)
	if err != nil {
		t.Fatalf("PathsEndingAt failed: %v", err)
	}
	got := encoded(paths...)
	want := encoded(pathseq.Seq{a, b, d}, pathseq.Seq{a, c, d})
	if !equalSets(got, want) {
		t.Errorf("d's paths = %v, want %v", got, want)
	}
}

func TestInsertEdgePathsCycleGuard(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	a := mustRegister(t, s, "widget", "a")
	b := mustRegister(t, s, "widget", "b")
	c := mustRegister(t, s, "widget", "c")
	mustInsertEdge(t, s, "widget", a, b)
	mustInsertEdge(t, s, "widget", b, c)

	if err := s.InsertEdgePaths("widget", c, a); !errors.Is(err, ErrCycle) {
		t.Errorf("Expected ErrCycle for c->a, got %v", err)
	}

	// The failed insert must not have touched the index.
	got := pathSet(t, s, "widget")
	want := encoded(pathseq.Seq{a}, pathseq.Seq{a, b}, pathseq.Seq{a, b, c})
	if !equalSets(got, want) {
		t.Errorf("Path set = %v, want %v", got, want)
	}
}

func TestWouldCycle(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	a := mustRegister(t, s, "widget", "a")
	b := mustRegister(t, s, "widget", "b")
	mustInsertEdge(t, s, "widget", a, b)

	cyclic, err := s.WouldCycle("widget", b, a)
	if err != nil {
		t.Fatalf("WouldCycle failed: %v", err)
	}
	if !cyclic {
		t.Error("b->a should be cyclic after a->b")
	}

	cyclic, err = s.WouldCycle("widget", a, b)
	if err != nil {
		t.Fatalf("WouldCycle failed: %v", err)
	}
	if cyclic {
		t.Error("Re-inserting a->b is not a cycle")
	}
}

func TestRemoveEdgePathsRestoresPriorState(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	a := mustRegister(t, s, "widget", "a")
	b := mustRegister(t, s, "widget", "b")
	before := pathSet(t, s, "widget")

	mustInsertEdge(t, s, "widget", a, b)
	if err := s.RemoveEdgePaths("widget", a, b); err != nil {
		t.Fatalf("RemoveEdgePaths failed: %v", err)
	}

	after := pathSet(t, s, "widget")
	if !equalSets(before, after) {
		t.Errorf("Create+remove did not restore the path set: %v -> %v", before, after)
	}
}

func TestRemoveEdgePathsAbsentEdgeIsNoop(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	a := mustRegister(t, s, "widget", "a")
	b := mustRegister(t, s, "widget", "b")
	before := pathSet(t, s, "widget")

	if err := s.RemoveEdgePaths("widget", a, b); err != nil {
		t.Fatalf("RemoveEdgePaths failed: %v", err)
	}
	if got := pathSet(t, s, "widget"); !equalSets(before, got) {
		t.Errorf("Removing an absent edge changed the path set: %v -> %v", before, got)
	}
}

func TestRemoveEdgePathsKeepsAlternateAncestry(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	// Diamond; removing b -> d must leave d reachable via c, with no
	// spurious root path for d.
	a := mustRegister(t, s, "widget", "a")
	b := mustRegister(t, s, "widget", "b")
	c := mustRegister(t, s, "widget", "c")
	d := mustRegister(t, s, "widget", "d")
	mustInsertEdge(t, s, "widget", a, b)
	mustInsertEdge(t, s, "widget", a, c)
	mustInsertEdge(t, s, "widget", b, d)
	mustInsertEdge(t, s, "widget", c, d)

	if err := s.RemoveEdgePaths("widget", b, d); err != nil {
		t.Fatalf("RemoveEdgePaths failed: %v", err)
	}

	paths, err := s.PathsEndingAt("widget", d)
	if err != nil {
		t.Fatalf("PathsEndingAt failed: %v", err)
	}
	got := encoded(paths...)
	want := encoded(pathseq.Seq{a, c, d})
	if !equalSets(got, want) {
		t.Errorf("d's paths = %v, want %v", got, want)
	}
}

func TestRemoveEdgePathsChildBecomesRoot(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	// a -> c -> d; removing a -> c leaves c an independent root keeping d.
	a := mustRegister(t, s, "widget", "a")
	c := mustRegister(t, s, "widget", "c")
	d := mustRegister(t, s, "widget", "d")
	mustInsertEdge(t, s, "widget", a, c)
	mustInsertEdge(t, s, "widget", c, d)

	if err := s.RemoveEdgePaths("widget", a, c); err != nil {
		t.Fatalf("RemoveEdgePaths failed: %v", err)
	}

	got := pathSet(t, s, "widget")
	want := encoded(pathseq.Seq{a}, pathseq.Seq{c}, pathseq.Seq{c, d})
	if !equalSets(got, want) {
		t.Errorf("Path set = %v, want %v", got, want)
	}
}

func TestRemoveEdgePathsCleansOrphanSubtree(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	// a -> c, b -> c, c -> d. Removing a -> c: c keeps its ancestry via b,
	// so the truncation artifacts rooted at c (including c's subtree copy)
	// are spurious and must go.
	a := mustRegister(t, s, "widget", "a")
	b := mustRegister(t, s, "widget", "b")
	c := mustRegister(t, s, "widget", "c")
	d := mustRegister(t, s, "widget", "d")
	mustInsertEdge(t, s, "widget", a, c)
	mustInsertEdge(t, s, "widget", b, c)
	mustInsertEdge(t, s, "widget", c, d)

	if err := s.RemoveEdgePaths("widget", a, c); err != nil {
		t.Fatalf("RemoveEdgePaths failed: %v", err)
	}

	got := pathSet(t, s, "widget")
	want := encoded(
		pathseq.Seq{a},
		pathseq.Seq{b},
		pathseq.Seq{b, c},
		pathseq.Seq{b, c, d},
	)
	if !equalSets(got, want) {
		t.Errorf("Path set = %v, want %v", got, want)
	}
}

func TestPathsRootedAtAndContaining(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	a := mustRegister(t, s, "widget", "a")
	b := mustRegister(t, s, "widget", "b")
	c := mustRegister(t, s, "widget", "c")
	mustInsertEdge(t, s, "widget", a, b)
	mustInsertEdge(t, s, "widget", b, c)

	rooted, err := s.PathsRootedAt("widget", a)
	if err != nil {
		t.Fatalf("PathsRootedAt failed: %v", err)
	}
	if len(rooted) != 3 {
		t.Errorf("Expected 3 paths rooted at a, got %v", rooted)
	}

	containing, err := s.PathsContaining("widget", b)
	if err != nil {
		t.Fatalf("PathsContaining failed: %v", err)
	}
	got := encoded(containing...)
	want := encoded(pathseq.Seq{a, b}, pathseq.Seq{a, b, c})
	if !equalSets(got, want) {
		t.Errorf("Paths containing b = %v, want %v", got, want)
	}
}

func TestPathIndexIsTypeScoped(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	a := mustRegister(t, s, "widget", "a")
	b := mustRegister(t, s, "widget", "b")
	x := mustRegister(t, s, "gadget", "x")
	mustInsertEdge(t, s, "widget", a, b)

	gadgetPaths := pathSet(t, s, "gadget")
	want := encoded(pathseq.Seq{x})
	if !equalSets(gadgetPaths, want) {
		t.Errorf("gadget paths = %v, want %v", gadgetPaths, want)
	}
}

package registry

import (
	"testing"

	"github.com/davdef/airlift-node/internal/apperrors"
	"github.com/davdef/airlift-node/internal/ring"
)

func TestRegisterGetRemove(t *testing.T) {
	t.Parallel()

	reg := New[*ring.Ring[int]]()
	r := ring.New[int](4, nil)

	if err := reg.Register("mixer:out", r); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, err := reg.Get("mixer:out")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != r {
		t.Fatalf("expected the same ring back")
	}

	reg.Remove("mixer:out")
	if _, err := reg.Get("mixer:out"); !apperrors.IsBufferNotFound(err) {
		t.Fatalf("expected BufferNotFound after Remove, got %v", err)
	}
}

func TestRegisterCollisionFails(t *testing.T) {
	t.Parallel()

	reg := New[int]()
	if err := reg.Register("a", 1); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := reg.Register("a", 2)
	if !apperrors.IsAlreadyRegistered(err) {
		t.Fatalf("expected AlreadyRegistered, got %v", err)
	}
}

func TestUpdateNeverFails(t *testing.T) {
	t.Parallel()

	reg := New[int]()
	reg.Update("a", 1)
	reg.Update("a", 2)
	got, err := reg.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected updated value 2, got %d", got)
	}
}

func TestList(t *testing.T) {
	t.Parallel()

	reg := New[int]()
	reg.Update("a", 1)
	reg.Update("b", 2)

	names := reg.List()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %d", len(names))
	}
}

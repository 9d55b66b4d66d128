package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestKindClassification(t *testing.T) {
	transient := []Kind{KindToolUnavailable, KindModelUnavailable}
	for _, k := range transient {
		if !k.Transient() {
			t.Errorf("%s should be transient", k)
		}
		if k.Recoverable() {
			t.Errorf("%s should not be recoverable", k)
		}
	}

	recoverable := []Kind{KindInvalidArguments, KindUnknownTool, KindToolExecutionError}
	for _, k := range recoverable {
		if !k.Recoverable() {
			t.Errorf("%s should be recoverable", k)
		}
		if k.Transient() {
			t.Errorf("%s should not be transient", k)
		}
	}

	terminal := []Kind{KindMalformedModelResponse, KindIterationLimitExceeded, KindRequestCancelled, KindInternal}
	for _, k := range terminal {
		if k.Transient() || k.Recoverable() {
			t.Errorf("%s should be terminal", k)
		}
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(New(KindUnknownTool, "nope")); got != KindUnknownTool {
		t.Errorf("KindOf = %s", got)
	}

	wrapped := fmt.Errorf("outer: %w", New(KindToolUnavailable, "down"))
	if got := KindOf(wrapped); got != KindToolUnavailable {
		t.Errorf("KindOf through wrap = %s", got)
	}

	if got := KindOf(stderrors.New("plain")); got != KindInternal {
		t.Errorf("unkinded error should map to internal, got %s", got)
	}

	if got := KindOf(nil); got != "" {
		t.Errorf("nil error should have no kind, got %s", got)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(KindToolUnavailable, cause, "call failed")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause must be reachable via errors.Is")
	}
	if err.Error() == "" || err.Unwrap() != cause {
		t.Errorf("unexpected wrap: %v", err)
	}

	if Wrap(KindInternal, nil, "x") != nil {
		t.Error("wrapping nil must return nil")
	}
}

func TestIsMatchesOnKind(t *testing.T) {
	a := New(KindRequestCancelled, "one")
	b := Newf(KindRequestCancelled, "another %d", 2)
	if !stderrors.Is(a, b) {
		t.Error("errors of the same kind should match")
	}
	c := New(KindInternal, "other")
	if stderrors.Is(a, c) {
		t.Error("errors of different kinds should not match")
	}
}

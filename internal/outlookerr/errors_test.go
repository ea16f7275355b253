package outlookerr

import (
	"errors"
	"fmt"
	"testing"
)

// TestError_MessageFormat verifies the rendered message includes kind,
// message and wrapped cause.
func TestError_MessageFormat(t *testing.T) {
	plain := New(KindInvalidParameter, "lat out of range")
	if got := plain.Error(); got != "invalid_parameter: lat out of range" {
		t.Errorf("Error() = %q", got)
	}

	cause := errors.New("connection refused")
	wrapped := Wrap(KindUpstreamData, "fetch observations", cause)
	want := "upstream_data_error: fetch observations: connection refused"
	if got := wrapped.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

// TestUnwrap verifies errors.Is reaches the wrapped cause.
func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindUpstreamData, "fetch", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

// TestIs_MatchesByKind verifies two errors with the same kind match under
// errors.Is regardless of message.
func TestIs_MatchesByKind(t *testing.T) {
	err := Newf(KindEmptySample, "no samples for %s", "t_max")
	if !errors.Is(err, New(KindEmptySample, "")) {
		t.Error("errors.Is should match by kind")
	}
	if errors.Is(err, New(KindDataUnavailable, "")) {
		t.Error("errors.Is should not match across kinds")
	}
}

// TestKindOf verifies kind extraction through wrapping layers and the empty
// kind for foreign errors.
func TestKindOf(t *testing.T) {
	inner := New(KindInsufficientData, "no temperature samples")
	outer := fmt.Errorf("aggregate day: %w", inner)
	if got := KindOf(outer); got != KindInsufficientData {
		t.Errorf("KindOf(wrapped) = %v, want insufficient_data", got)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
	if !IsKind(outer, KindInsufficientData) {
		t.Error("IsKind(wrapped, insufficient_data) = false, want true")
	}
}

package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestCloseReason(t *testing.T) {
	t.Parallel()

	if got := CloseReason(Rejection("authenticate", ReasonUnauthenticated, ErrUnauthenticated)); got != ReasonUnauthenticated {
		t.Fatalf("CloseReason = %d, want %d", got, ReasonUnauthenticated)
	}

	// Wrapped rejections still surface their code.
	wrapped := fmt.Errorf("session setup: %w", Rejection("authorize", ReasonForbidden, ErrNotPermitted))
	if got := CloseReason(wrapped); got != ReasonForbidden {
		t.Fatalf("CloseReason(wrapped) = %d, want %d", got, ReasonForbidden)
	}

	if got := CloseReason(errors.New("plain failure")); got != ReasonBadRequest {
		t.Fatalf("CloseReason(plain) = %d, want %d", got, ReasonBadRequest)
	}
}

func TestSessionErrorUnwrap(t *testing.T) {
	t.Parallel()

	err := Rejection("authorize", ReasonNotFound, ErrEndpointNotFound)
	if !errors.Is(err, ErrEndpointNotFound) {
		t.Fatalf("rejection should unwrap to the sentinel")
	}
}

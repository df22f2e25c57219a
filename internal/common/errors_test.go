package common

import (
	"errors"
	"testing"
)

func TestNonceErrorsWrapInvalidNonce(t *testing.T) {
	if !errors.Is(ErrNonceStale, ErrInvalidNonce) {
		t.Fatalf("ErrNonceStale must wrap ErrInvalidNonce")
	}
	if !errors.Is(ErrNonceMismatch, ErrInvalidNonce) {
		t.Fatalf("ErrNonceMismatch must wrap ErrInvalidNonce")
	}
	if errors.Is(ErrNonceStale, ErrNonceMismatch) {
		t.Fatalf("stale and mismatch must stay distinguishable")
	}
}

func TestAlreadySignedIsConflict(t *testing.T) {
	if !errors.Is(ErrAlreadySigned, ErrConflict) {
		t.Fatalf("ErrAlreadySigned must wrap ErrConflict")
	}
}

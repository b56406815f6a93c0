package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOf_CodedError(t *testing.T) {
	t.Parallel()
	err := New(NotFound, "profile not found")
	if got := CodeOf(err); got != NotFound {
		t.Fatalf("CodeOf: got %q want %q", got, NotFound)
	}
}

func TestCodeOf_WrappedCodedError(t *testing.T) {
	t.Parallel()
	inner := Wrap(ResourceExhausted, "note limit reached", errors.New("count=10"))
	outer := fmt.Errorf("create note: %w", inner)
	if got := CodeOf(outer); got != ResourceExhausted {
		t.Fatalf("CodeOf through wrap: got %q want %q", got, ResourceExhausted)
	}
	if !IsCode(outer, ResourceExhausted) {
		t.Fatal("IsCode should see wrapped code")
	}
}

func TestCodeOf_PlainErrorDefaultsToInternal(t *testing.T) {
	t.Parallel()
	if got := CodeOf(errors.New("raw sqlite error")); got != Internal {
		t.Fatalf("CodeOf plain error: got %q want %q", got, Internal)
	}
}

func TestMessageOf_NeverLeaksRawErrors(t *testing.T) {
	t.Parallel()
	raw := errors.New("unable to open database file /data/notes.db")
	if got := MessageOf(raw); got != "internal error" {
		t.Fatalf("MessageOf leaked raw error: %q", got)
	}
	coded := New(InvalidArgument, "title or content is required")
	if got := MessageOf(coded); got != "title or content is required" {
		t.Fatalf("MessageOf coded: got %q", got)
	}
}

func TestHTTPStatus_Mapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		code Code
		want int
	}{
		{InvalidArgument, http.StatusBadRequest},
		{Unauthenticated, http.StatusUnauthorized},
		{PermissionDenied, http.StatusForbidden},
		{NotFound, http.StatusNotFound},
		{FailedPrecondition, http.StatusConflict},
		{ResourceExhausted, http.StatusPaymentRequired},
		{Unavailable, http.StatusServiceUnavailable},
		{Internal, http.StatusInternalServerError},
		{Code("unknown"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.code); got != tc.want {
			t.Fatalf("HTTPStatus(%q): got %d want %d", tc.code, got, tc.want)
		}
	}
}

func TestError_UnwrapChain(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection refused")
	err := Wrap(Unavailable, "subscription provider unreachable", cause)
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should find the wrapped cause")
	}
}

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewStaticAPIKeyValidator(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("key-1:alice, key-2:bob")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}

	identity, ok := validator.Validate(context.Background(), "key-1")
	if !ok || identity.UserID != "alice" {
		t.Fatalf("Validate(key-1) = %+v, %v", identity, ok)
	}
	if _, ok := validator.Validate(context.Background(), "key-3"); ok {
		t.Fatal("unknown key validated")
	}
}

func TestNewStaticAPIKeyValidatorRejectsMalformedSpec(t *testing.T) {
	for _, spec := range []string{"keyonly", "key:", ":user", "a:b:c"} {
		if _, err := NewStaticAPIKeyValidator(spec); err == nil {
			t.Fatalf("spec %q should be rejected", spec)
		}
	}
}

func TestNewStaticAPIKeyValidatorEmptySpec(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator(\"\") error = %v", err)
	}
	if _, ok := validator.Validate(context.Background(), "anything"); ok {
		t.Fatal("empty validator accepted a key")
	}
}

func TestCallerID(t *testing.T) {
	if got := CallerID(context.Background()); got != AnonymousUser {
		t.Fatalf("CallerID() = %q, want %q", got, AnonymousUser)
	}

	ctx := WithIdentity(context.Background(), Identity{UserID: "alice"})
	if got := CallerID(ctx); got != "alice" {
		t.Fatalf("CallerID() = %q", got)
	}

	blank := WithIdentity(context.Background(), Identity{UserID: "  "})
	if got := CallerID(blank); got != AnonymousUser {
		t.Fatalf("CallerID() with blank user = %q, want anonymous", got)
	}
}

func TestCallerMiddlewareCapturesHeader(t *testing.T) {
	var captured string
	handler := CallerMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured = CallerID(r.Context())
	}))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("X-User-ID", "carol")
	handler.ServeHTTP(httptest.NewRecorder(), request)
	if captured != "carol" {
		t.Fatalf("caller = %q", captured)
	}

	request = httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), request)
	if captured != AnonymousUser {
		t.Fatalf("caller without header = %q, want anonymous", captured)
	}
}

func TestCallerMiddlewareKeepsAuthenticatedIdentity(t *testing.T) {
	var captured string
	handler := CallerMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured = CallerID(r.Context())
	}))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("X-User-ID", "spoofed")
	request = request.WithContext(WithIdentity(request.Context(), Identity{UserID: "alice"}))
	handler.ServeHTTP(httptest.NewRecorder(), request)
	if captured != "alice" {
		t.Fatalf("caller = %q, authenticated identity must win", captured)
	}
}

func TestMiddlewareRejectsMissingAndInvalidKeys(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("key-1:alice")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	wrapped := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	recorder := httptest.NewRecorder()
	wrapped.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("X-API-Key", "wrong")
	wrapped.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong key = %d", recorder.Code)
	}
}

func TestMiddlewareAcceptsBearerToken(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("key-1:alice")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}

	var captured string
	wrapped := Middleware(nil, validator)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured = CallerID(r.Context())
	}))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("Authorization", "Bearer key-1")
	wrapped.ServeHTTP(httptest.NewRecorder(), request)
	if captured != "alice" {
		t.Fatalf("caller = %q", captured)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func authed(mw func(http.Handler) http.Handler, header, value string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/targets", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rr := httptest.NewRecorder()
	mw(okHandler).ServeHTTP(rr, req)
	return rr.Code
}

func TestRequireAny_KeyTiers(t *testing.T) {
	keys := Keys{Public: []string{"pub"}, Admin: []string{"adm"}}

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"public via X-API-Key", "X-API-Key", "pub", http.StatusOK},
		{"admin via bearer", "Authorization", "Bearer adm", http.StatusOK},
		{"unknown key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"no key", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := authed(RequireAny(keys), tc.header, tc.value); got != tc.want {
				t.Fatalf("want %d, got %d", tc.want, got)
			}
		})
	}
}

func TestRequireAdmin_RejectsPublicKey(t *testing.T) {
	keys := Keys{Public: []string{"pub"}, Admin: []string{"adm"}}

	if got := authed(RequireAdmin(keys), "X-API-Key", "adm"); got != http.StatusOK {
		t.Fatalf("admin key: want 200, got %d", got)
	}
	if got := authed(RequireAdmin(keys), "X-API-Key", "pub"); got != http.StatusForbidden {
		t.Fatalf("public key on admin route: want 403, got %d", got)
	}
	if got := authed(RequireAdmin(keys), "", ""); got != http.StatusForbidden {
		t.Fatalf("missing key on admin route: want 403, got %d", got)
	}
}

func TestAuth_OpenWhenNoKeysConfigured(t *testing.T) {
	if got := authed(RequireAny(Keys{}), "", ""); got != http.StatusOK {
		t.Fatalf("unconfigured auth must pass requests through, got %d", got)
	}
	if got := authed(RequireAdmin(Keys{}), "", ""); got != http.StatusOK {
		t.Fatalf("unconfigured admin auth must pass requests through, got %d", got)
	}
}

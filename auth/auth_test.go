package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/supplychain/traceability"
)

var farmer = traceability.User{ID: 7, Name: "Green Acres", Role: traceability.RoleProducer}

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)

	token, err := iss.Issue(farmer)
	require.NoError(t, err)

	id, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 7, Name: "Green Acres", Role: traceability.RoleProducer}, id)
}

func TestIssuer_WrongSecret(t *testing.T) {
	token, err := NewIssuer("secret", time.Hour).Issue(farmer)
	require.NoError(t, err)

	_, err = NewIssuer("other", time.Hour).Parse(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorContains(t, err, "signature")
	assert.NotContains(t, err.Error(), "<nil>")
}

func TestIssuer_Expired(t *testing.T) {
	iss := NewIssuer("secret", time.Minute)
	issued := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	iss.now = func() time.Time { return issued }

	token, err := iss.Issue(farmer)
	require.NoError(t, err)

	iss.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = iss.Parse(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_Garbage(t *testing.T) {
	_, err := NewIssuer("secret", time.Hour).Parse("not-a-jwt")

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func protected(iss *Issuer, roles ...traceability.Role) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := FromContext(r.Context())
		w.Header().Set("X-User", id.UserID.String())
		w.WriteHeader(http.StatusNoContent)
	})
	h := http.Handler(ok)
	if len(roles) > 0 {
		h = RequireRole(roles...)(h)
	}
	return Authenticate(iss, zap.NewNop())(h)
}

func TestAuthenticate(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	good, err := iss.Issue(farmer)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + good, http.StatusNoContent},
		{"lowercase scheme", "bearer " + good, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			protected(iss).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestAuthenticate_SetsIdentity(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	token, err := iss.Issue(farmer)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	protected(iss).ServeHTTP(rec, req)

	assert.Equal(t, "7", rec.Header().Get("X-User"))
}

func TestRequireRole(t *testing.T) {
	// GIVEN: An endpoint restricted to producers and admins
	// WHEN: A consumer calls it
	// THEN: 403; a producer gets through

	iss := NewIssuer("secret", time.Hour)
	consumer, err := iss.Issue(traceability.User{ID: 9, Name: "Shopper", Role: traceability.RoleConsumer})
	require.NoError(t, err)
	producer, err := iss.Issue(farmer)
	require.NoError(t, err)

	h := protected(iss, traceability.RoleProducer, traceability.RoleAdmin)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+consumer)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+producer)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireRole_WithoutIdentity(t *testing.T) {
	h := RequireRole(traceability.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

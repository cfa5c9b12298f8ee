package web

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// TenantHeader carries the caller's tenant scope. Every API request must
// set it; upstream auth is expected to have verified the caller belongs to
// the tenant.
const TenantHeader = "X-Tenant-ID"

type tenantKey struct{}

// requireTenant rejects requests without a valid tenant ID and stores the
// parsed ID in the request context.
func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(TenantHeader)
		if raw == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"missing ` + TenantHeader + ` header"}`))
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid ` + TenantHeader + ` header"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey{}, id)))
	})
}

// tenantID returns the tenant scope placed in the context by requireTenant.
func tenantID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(tenantKey{}).(uuid.UUID)
	return id
}

package auth

import (
	"net/http"
	"strings"
)

// Policy determines required roles by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a default policy with exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if r.Method == http.MethodOptions {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves required role for the request.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	path := r.URL.Path
	method := r.Method

	switch {
	case path == "/api/v1/invoices/build":
		return RoleStaff, true
	case path == "/api/v1/invoices/rebill", path == "/api/v1/invoices/billing-runs":
		return RoleLandlord, true
	case path == "/api/v1/invoices/collect":
		return RoleStaff, true
	case path == "/api/v1/invoices":
		return RoleViewer, true
	case strings.HasPrefix(path, "/api/v1/invoices/"):
		if method == http.MethodGet {
			if strings.Contains(path, "/export.") {
				return RoleStaff, true
			}
			return RoleViewer, true
		}
		return RoleLandlord, true
	case path == "/api/v1/reports/revenue.xlsx":
		return RoleStaff, true
	case strings.HasPrefix(path, "/api/v1/reports/"):
		return RoleViewer, true
	case path == "/api/v1/service-costs":
		if method == http.MethodGet {
			return RoleViewer, true
		}
		return RoleLandlord, true
	case strings.HasPrefix(path, "/api/v1/meter-readings"):
		if method == http.MethodGet {
			return RoleViewer, true
		}
		return RoleStaff, true
	}

	if strings.HasPrefix(path, "/api/") {
		if method == http.MethodGet || method == http.MethodHead {
			return RoleViewer, true
		}
		return RoleLandlord, true
	}
	return "", false
}

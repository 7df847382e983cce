// Package authz is the role-to-route gate of the back office plus the data
// scoping rule that limits customers to their own ledger.
package authz

import (
	"errors"
	"strings"

	"github.com/curasupply/curaledger/internal/store"
)

// ErrForbidden is returned when an identity may not see the requested data.
var ErrForbidden = errors.New("authz: forbidden")

// Role is the authenticated user's role.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
	RoleSales    Role = "SALES"
)

// Well-known paths.
const (
	SignInPath    = "/sign-in"
	DashboardPath = "/dashboard"
)

// Identity is who is asking. PartnerID links a customer login to its partner.
type Identity struct {
	Authenticated bool
	Role          Role
	PartnerID     string
	Name          string
}

// Decision is the outcome of Authorize. When Allow is false, Redirect names
// where the caller should be sent instead.
type Decision struct {
	Allow    bool
	Redirect string
}

// Rule is one role's entry in the allow-list table.
type Rule struct {
	// All grants every path.
	All bool
	// Exact paths allowed as-is.
	Exact []string
	// Prefixes allowed together with everything below them.
	Prefixes []string
}

var customerPrefixes = []string{
	"/dashboard/orders",
	"/dashboard/proposals",
	"/dashboard/statements",
}

// Rules is the allow-list table consulted by Authorize.
var Rules = map[Role]Rule{
	RoleAdmin: {All: true},
	RoleCustomer: {
		Exact:    []string{DashboardPath},
		Prefixes: customerPrefixes,
	},
	RoleSales: {
		Exact: []string{DashboardPath},
		Prefixes: append(append([]string(nil), customerPrefixes...),
			"/dashboard/partners",
			"/dashboard/finance/transactions",
		),
	},
}

// PublicPaths are reachable without signing in.
var PublicPaths = []string{SignInPath, "/health", "/metrics"}

// Authorize decides whether id may open path.
func Authorize(id Identity, path string) Decision {
	path = clean(path)

	if isPublic(path) {
		if id.Authenticated && path == SignInPath {
			return Decision{Redirect: DashboardPath}
		}
		return Decision{Allow: true}
	}
	if !id.Authenticated {
		return Decision{Redirect: SignInPath}
	}

	rule, ok := Rules[id.Role]
	if ok && rule.allows(path) {
		return Decision{Allow: true}
	}
	if path == DashboardPath {
		// Nowhere better to send an unknown role.
		return Decision{Redirect: SignInPath}
	}
	return Decision{Redirect: DashboardPath}
}

// IsSignIn reports whether path names the sign-in page, trailing slashes
// ignored.
func IsSignIn(path string) bool {
	return clean(path) == SignInPath
}

func (r Rule) allows(path string) bool {
	if r.All {
		return true
	}
	for _, p := range r.Exact {
		if path == p {
			return true
		}
	}
	for _, p := range r.Prefixes {
		if hasPathPrefix(path, p) {
			return true
		}
	}
	return false
}

// hasPathPrefix matches whole segments: /a/b matches /a/b and /a/b/c but not /a/bc.
func hasPathPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

func isPublic(path string) bool {
	for _, p := range PublicPaths {
		if path == p {
			return true
		}
	}
	return false
}

func clean(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}

// ScopeFilter applies the data scoping rule to a ledger query. Customers
// are pinned to their own partner; asking for anyone else's is forbidden.
// Other roles pass through unchanged.
func ScopeFilter(id Identity, f store.Filter) (store.Filter, error) {
	if !id.Authenticated {
		return store.Filter{}, ErrForbidden
	}
	if id.Role != RoleCustomer {
		return f, nil
	}
	if id.PartnerID == "" {
		return store.Filter{}, ErrForbidden
	}
	if f.PartnerID != "" && f.PartnerID != id.PartnerID {
		return store.Filter{}, ErrForbidden
	}
	f.PartnerID = id.PartnerID
	return f, nil
}

package authz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curasupply/curaledger/internal/store"
)

var (
	anonymous = Identity{}
	admin     = Identity{Authenticated: true, Role: RoleAdmin}
	customer  = Identity{Authenticated: true, Role: RoleCustomer, PartnerID: "p-1"}
	sales     = Identity{Authenticated: true, Role: RoleSales}
	stranger  = Identity{Authenticated: true, Role: "AUDITOR"}
)

func TestAuthorize(t *testing.T) {
	allow := Decision{Allow: true}
	toSignIn := Decision{Redirect: SignInPath}
	toDashboard := Decision{Redirect: DashboardPath}

	tests := []struct {
		name string
		id   Identity
		path string
		want Decision
	}{
		{"anonymous protected", anonymous, "/dashboard/statements", toSignIn},
		{"anonymous sign-in", anonymous, "/sign-in", allow},
		{"anonymous health", anonymous, "/health", allow},
		{"signed in visits sign-in", customer, "/sign-in", toDashboard},
		{"signed in visits sign-in slash", customer, "/sign-in/", toDashboard},

		{"admin anything", admin, "/dashboard/finance/report", allow},
		{"admin settings", admin, "/dashboard/settings/users", allow},

		{"customer root", customer, "/dashboard", allow},
		{"customer root trailing slash", customer, "/dashboard/", allow},
		{"customer orders", customer, "/dashboard/orders", allow},
		{"customer order detail", customer, "/dashboard/orders/42", allow},
		{"customer proposals", customer, "/dashboard/proposals", allow},
		{"customer statements", customer, "/dashboard/statements/p-1", allow},
		{"customer finance", customer, "/dashboard/finance/report", toDashboard},
		{"customer partners", customer, "/dashboard/partners", toDashboard},
		{"customer segment boundary", customer, "/dashboard/ordersexport", toDashboard},

		{"sales partners", sales, "/dashboard/partners/p-9", allow},
		{"sales transactions", sales, "/dashboard/finance/transactions", allow},
		{"sales report", sales, "/dashboard/finance/report", toDashboard},
		{"sales statements", sales, "/dashboard/statements", allow},

		{"unknown role", stranger, "/dashboard/orders", toDashboard},
		{"unknown role root", stranger, "/dashboard", toSignIn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authorize(tt.id, tt.path))
		})
	}
}

func TestIsSignIn(t *testing.T) {
	assert.True(t, IsSignIn("/sign-in"))
	assert.True(t, IsSignIn("/sign-in//"))
	assert.False(t, IsSignIn("/sign-in/extra"))
	assert.False(t, IsSignIn("/dashboard"))
}

func TestScopeFilter(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	f, err := ScopeFilter(customer, store.Filter{From: from})
	require.NoError(t, err)
	assert.Equal(t, store.Filter{PartnerID: "p-1", From: from}, f)

	f, err = ScopeFilter(customer, store.Filter{PartnerID: "p-1"})
	require.NoError(t, err)
	assert.Equal(t, "p-1", f.PartnerID)

	_, err = ScopeFilter(customer, store.Filter{PartnerID: "p-2"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = ScopeFilter(Identity{Authenticated: true, Role: RoleCustomer}, store.Filter{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = ScopeFilter(anonymous, store.Filter{})
	assert.ErrorIs(t, err, ErrForbidden)

	f, err = ScopeFilter(admin, store.Filter{PartnerID: "p-2"})
	require.NoError(t, err)
	assert.Equal(t, "p-2", f.PartnerID)

	f, err = ScopeFilter(sales, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, f.PartnerID)
}

func TestRulesTable(t *testing.T) {
	// Sales inherits every customer prefix.
	for _, p := range Rules[RoleCustomer].Prefixes {
		assert.Contains(t, Rules[RoleSales].Prefixes, p)
	}
	assert.NotContains(t, Rules[RoleCustomer].Prefixes, "/dashboard/partners")
}

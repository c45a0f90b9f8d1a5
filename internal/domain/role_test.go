package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

func TestParseRole(t *testing.T) {
	for _, role := range []domain.Role{domain.RoleCustomer, domain.RoleShop, domain.RoleAdmin} {
		parsed, err := domain.ParseRole(role.String())
		require.NoError(t, err)
		require.Equal(t, role, parsed)
	}

	parsed, err := domain.ParseRole(" Admin ")
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, parsed)

	_, err = domain.ParseRole("superuser")
	require.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestIdentityCanActOn(t *testing.T) {
	customer := domain.Identity{Role: domain.RoleCustomer, SubjectID: "c-1"}
	shop := domain.Identity{Role: domain.RoleShop, SubjectID: "s-1"}
	admin := domain.Identity{Role: domain.RoleAdmin, SubjectID: "a-1"}

	require.True(t, customer.CanActOn(domain.RoleCustomer, "c-1"))
	require.False(t, customer.CanActOn(domain.RoleCustomer, "c-2"))
	require.False(t, customer.CanActOn(domain.RoleShop, "c-1"))
	require.True(t, shop.CanActOn(domain.RoleShop, "s-1"))
	require.True(t, admin.CanActOn(domain.RoleShop, "s-1"))
	require.False(t, domain.Identity{Role: domain.RoleCustomer}.CanActOn(domain.RoleCustomer, ""))
}

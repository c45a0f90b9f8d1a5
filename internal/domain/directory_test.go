package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

func TestDirectoryQueryMatch(t *testing.T) {
	c := domain.Customer{ID: "c-1", Name: "Rahul Sharma", Email: "rahul@example.com", Phone: "+91 98765 43210", Status: domain.ApprovalStatusApproved}
	s := domain.Shop{ID: "s-1", ShopName: "Sharma General Store", OwnerName: "Vikas", Email: "store@example.com", Status: domain.ApprovalStatusPending}

	require.True(t, domain.DirectoryQuery{}.MatchCustomer(c))
	require.True(t, domain.DirectoryQuery{Text: "SHARMA"}.MatchCustomer(c))
	require.True(t, domain.DirectoryQuery{Text: "98765"}.MatchCustomer(c))
	require.False(t, domain.DirectoryQuery{Text: "patel"}.MatchCustomer(c))
	require.False(t, domain.DirectoryQuery{Status: domain.ApprovalStatusPending}.MatchCustomer(c))

	require.True(t, domain.DirectoryQuery{Text: "general"}.MatchShop(s))
	require.True(t, domain.DirectoryQuery{Text: "vikas", Status: domain.ApprovalStatusPending}.MatchShop(s))
}

func TestVerificationDecide(t *testing.T) {
	now := time.Now().UTC()
	v := domain.VerificationRequest{ID: "v-1", SubjectType: domain.SubjectCustomer, SubjectID: "c-1", Status: domain.ApprovalStatusPending}

	require.NoError(t, v.Decide(domain.ApprovalStatusRejected, "blurry PAN card", now))
	require.Equal(t, "blurry PAN card", v.Reason)
	require.Equal(t, now, v.DecidedAt)
	require.ErrorIs(t, v.Decide(domain.ApprovalStatusApproved, "", now), domain.ErrVerificationAlreadyDecided)
}

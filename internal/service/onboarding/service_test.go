package onboarding_test

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/credit"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/directory"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/onboarding"
	"github.com/vladislavdragonenkov/creditmarket/internal/storage/memory"
)

type OnboardingSuite struct {
	suite.Suite

	ctx       context.Context
	now       time.Time
	directory *directory.Service
	credit    *credit.Service
	svc       *onboarding.Service
}

func TestOnboardingSuite(t *testing.T) {
	suite.Run(t, new(OnboardingSuite))
}

func (s *OnboardingSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		s.now = s.now.Add(time.Minute)
		return s.now
	}
	logger := log.NewEntry(log.New())

	s.directory = directory.NewService(memory.NewDirectoryRepository(), memory.NewCatalogRepository(), directory.WithLogger(logger))
	s.credit = credit.NewService(memory.NewAccountRepository(), credit.WithLogger(logger))
	s.svc = onboarding.NewService(memory.NewVerificationRepository(), s.directory, s.credit,
		onboarding.WithClock(clock),
		onboarding.WithLogger(logger),
		onboarding.WithDefaultLimit(25000_00),
	)

	_, err := s.directory.RegisterCustomer(s.ctx, domain.Customer{ID: "cust-1", Name: "Rahul"})
	s.Require().NoError(err)
	_, err = s.directory.RegisterCustomer(s.ctx, domain.Customer{ID: "cust-2", Name: "Priya"})
	s.Require().NoError(err)
	_, err = s.directory.RegisterShop(s.ctx, domain.Shop{ID: "shop-1", ShopName: "Kirana"})
	s.Require().NoError(err)
}

func (s *OnboardingSuite) TestApproveCustomerOpensAccount() {
	v, err := s.svc.Submit(s.ctx, onboarding.SubmitRequest{
		SubjectType:         domain.SubjectCustomer,
		SubjectID:           "cust-1",
		Documents:           []string{"aadhaar.pdf", " ", "pan.jpg"},
		RequestedLimitMinor: 80000_00,
	})
	s.Require().NoError(err)
	s.Equal("Rahul", v.Name)
	s.Equal([]string{"aadhaar.pdf", "pan.jpg"}, v.Documents)

	approved, err := s.svc.Approve(s.ctx, v.ID, 0)
	s.Require().NoError(err)
	s.Equal(domain.ApprovalStatusApproved, approved.Status)
	s.False(approved.DecidedAt.IsZero())

	account, err := s.credit.Get(s.ctx, "cust-1")
	s.Require().NoError(err)
	s.Equal(int64(80000_00), account.CreditLimitMinor)
	s.Equal(int64(80000_00), account.CreditAvailableMinor)

	customer, err := s.directory.GetCustomer(s.ctx, "cust-1")
	s.Require().NoError(err)
	s.Equal(domain.ApprovalStatusApproved, customer.Status)

	_, err = s.svc.Approve(s.ctx, v.ID, 0)
	s.ErrorIs(err, domain.ErrVerificationAlreadyDecided)
}

func (s *OnboardingSuite) TestApproveUsesOverrideThenDefaultLimit() {
	v, err := s.svc.Submit(s.ctx, onboarding.SubmitRequest{SubjectType: domain.SubjectCustomer, SubjectID: "cust-2"})
	s.Require().NoError(err)

	_, err = s.svc.Approve(s.ctx, v.ID, -1)
	s.ErrorIs(err, domain.ErrCreditLimitNegative)

	_, err = s.svc.Approve(s.ctx, v.ID, 0)
	s.Require().NoError(err)
	account, err := s.credit.Get(s.ctx, "cust-2")
	s.Require().NoError(err)
	s.Equal(int64(25000_00), account.CreditLimitMinor)
}

func (s *OnboardingSuite) TestShopApprovalAndRejection() {
	_, err := s.svc.Submit(s.ctx, onboarding.SubmitRequest{SubjectType: domain.SubjectShop, SubjectID: "shop-1", RequestedLimitMinor: 100})
	s.ErrorIs(err, domain.ErrPermissionDenied)

	v, err := s.svc.Submit(s.ctx, onboarding.SubmitRequest{SubjectType: domain.SubjectShop, SubjectID: "shop-1", Documents: []string{"gst.pdf"}})
	s.Require().NoError(err)

	_, err = s.svc.Reject(s.ctx, v.ID, "  ")
	s.ErrorIs(err, domain.ErrReasonRequired)

	rejected, err := s.svc.Reject(s.ctx, v.ID, "GST certificate expired")
	s.Require().NoError(err)
	s.Equal("GST certificate expired", rejected.Reason)

	shop, err := s.directory.GetShop(s.ctx, "shop-1")
	s.Require().NoError(err)
	s.Equal(domain.ApprovalStatusRejected, shop.Status)

	again, err := s.svc.Submit(s.ctx, onboarding.SubmitRequest{SubjectType: domain.SubjectShop, SubjectID: "shop-1"})
	s.Require().NoError(err)
	_, err = s.svc.Approve(s.ctx, again.ID, 0)
	s.Require().NoError(err)
	shop, err = s.directory.GetShop(s.ctx, "shop-1")
	s.Require().NoError(err)
	s.Equal(domain.ApprovalStatusApproved, shop.Status)
}

func (s *OnboardingSuite) TestQueues() {
	first, err := s.svc.Submit(s.ctx, onboarding.SubmitRequest{SubjectType: domain.SubjectCustomer, SubjectID: "cust-1"})
	s.Require().NoError(err)
	second, err := s.svc.Submit(s.ctx, onboarding.SubmitRequest{SubjectType: domain.SubjectCustomer, SubjectID: "cust-2"})
	s.Require().NoError(err)
	shop, err := s.svc.Submit(s.ctx, onboarding.SubmitRequest{SubjectType: domain.SubjectShop, SubjectID: "shop-1"})
	s.Require().NoError(err)

	pending, err := s.svc.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 3)
	s.Equal(first.ID, pending[0].ID)

	_, err = s.svc.Approve(s.ctx, second.ID, 0)
	s.Require().NoError(err)
	_, err = s.svc.Reject(s.ctx, shop.ID, "blurry photo")
	s.Require().NoError(err)

	completed, err := s.svc.ListCompleted(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(completed, 2)
	s.Equal(shop.ID, completed[0].ID)
	s.Equal(second.ID, completed[1].ID)

	pending, err = s.svc.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Len(pending, 1)
}

func (s *OnboardingSuite) TestSubmitValidation() {
	_, err := s.svc.Submit(s.ctx, onboarding.SubmitRequest{SubjectType: "admin", SubjectID: "x"})
	s.ErrorIs(err, domain.ErrSubjectTypeInvalid)
	_, err = s.svc.Submit(s.ctx, onboarding.SubmitRequest{SubjectType: domain.SubjectCustomer, SubjectID: "ghost"})
	s.ErrorIs(err, domain.ErrCustomerNotFound)
	_, err = s.svc.Submit(s.ctx, onboarding.SubmitRequest{SubjectType: domain.SubjectShop})
	s.ErrorIs(err, domain.ErrShopRequired)
}

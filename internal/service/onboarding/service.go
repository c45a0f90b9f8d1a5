package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/directory"
)

// DefaultCreditLimitMinor — лимит нового клиента, если в заявке он не запрошен (₹50 000).
const DefaultCreditLimitMinor int64 = 50000_00

// AccountOpener открывает кредитный счёт одобренному клиенту.
type AccountOpener interface {
	Open(ctx context.Context, customerID string, limitMinor int64) (domain.CreditAccount, error)
}

// SubmitRequest — заявка клиента или магазина на проверку документов.
type SubmitRequest struct {
	SubjectType         domain.SubjectType
	SubjectID           string
	Documents           []string
	RequestedLimitMinor int64
}

// Service ведёт заявки на проверку и открывает счёт при одобрении клиента.
type Service struct {
	verifications domain.VerificationRepository
	directory     *directory.Service
	accounts      AccountOpener
	defaultLimit  int64
	logger        *log.Entry
	now           func() time.Time
	newID         func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock подменяет часы.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDefaultLimit задаёт лимит по умолчанию для одобренных клиентов.
func WithDefaultLimit(limitMinor int64) Option {
	return func(s *Service) { s.defaultLimit = limitMinor }
}

// NewService создаёт сервис проверки.
func NewService(verifications domain.VerificationRepository, dir *directory.Service, accounts AccountOpener, opts ...Option) *Service {
	s := &Service{
		verifications: verifications,
		directory:     dir,
		accounts:      accounts,
		defaultLimit:  DefaultCreditLimitMinor,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "onboarding")
	}
	return s
}

// Submit регистрирует заявку. Субъект должен уже быть в справочнике.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (domain.VerificationRequest, error) {
	if !req.SubjectType.Valid() {
		return domain.VerificationRequest{}, domain.ErrSubjectTypeInvalid
	}
	if req.RequestedLimitMinor < 0 {
		return domain.VerificationRequest{}, domain.ErrCreditLimitNegative
	}
	if req.SubjectType == domain.SubjectShop && req.RequestedLimitMinor != 0 {
		return domain.VerificationRequest{}, fmt.Errorf("shop cannot request credit limit: %w", domain.ErrPermissionDenied)
	}

	name, err := s.subjectName(ctx, req.SubjectType, req.SubjectID)
	if err != nil {
		return domain.VerificationRequest{}, err
	}

	docs := make([]string, 0, len(req.Documents))
	for _, d := range req.Documents {
		if d = strings.TrimSpace(d); d != "" {
			docs = append(docs, d)
		}
	}

	v := domain.VerificationRequest{
		ID:                  s.newID(),
		SubjectType:         req.SubjectType,
		SubjectID:           req.SubjectID,
		Name:                name,
		Documents:           docs,
		RequestedLimitMinor: req.RequestedLimitMinor,
		Status:              domain.ApprovalStatusPending,
		SubmittedAt:         s.now(),
	}
	if err := s.verifications.Create(ctx, v); err != nil {
		return domain.VerificationRequest{}, err
	}

	s.logger.WithFields(log.Fields{
		"verification_id": v.ID,
		"subject_type":    v.SubjectType,
		"subject_id":      v.SubjectID,
	}).Info("verification submitted")
	return v, nil
}

// Approve одобряет заявку. Клиенту открывается счёт с limitMinor; 0 — запрошенный
// в заявке лимит или лимит по умолчанию.
func (s *Service) Approve(ctx context.Context, id string, limitMinor int64) (domain.VerificationRequest, error) {
	if limitMinor < 0 {
		return domain.VerificationRequest{}, domain.ErrCreditLimitNegative
	}
	v, err := s.verifications.Get(ctx, id)
	if err != nil {
		return domain.VerificationRequest{}, err
	}
	if err := v.Decide(domain.ApprovalStatusApproved, "", s.now()); err != nil {
		return domain.VerificationRequest{}, err
	}

	switch v.SubjectType {
	case domain.SubjectCustomer:
		if limitMinor == 0 {
			limitMinor = v.RequestedLimitMinor
		}
		if limitMinor == 0 {
			limitMinor = s.defaultLimit
		}
		if err := s.approveCustomer(ctx, v.SubjectID, limitMinor); err != nil {
			return domain.VerificationRequest{}, err
		}
	case domain.SubjectShop:
		if err := s.setShopStatus(ctx, v.SubjectID, domain.ApprovalStatusApproved); err != nil {
			return domain.VerificationRequest{}, err
		}
	}

	if err := s.verifications.Save(ctx, v); err != nil {
		return domain.VerificationRequest{}, fmt.Errorf("save verification: %w", err)
	}
	s.logger.WithFields(log.Fields{
		"verification_id": v.ID,
		"subject_type":    v.SubjectType,
		"subject_id":      v.SubjectID,
		"limit_minor":     limitMinor,
	}).Info("verification approved")
	return v, nil
}

// Reject отклоняет заявку с причиной.
func (s *Service) Reject(ctx context.Context, id, reason string) (domain.VerificationRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.VerificationRequest{}, domain.ErrReasonRequired
	}
	v, err := s.verifications.Get(ctx, id)
	if err != nil {
		return domain.VerificationRequest{}, err
	}
	if err := v.Decide(domain.ApprovalStatusRejected, reason, s.now()); err != nil {
		return domain.VerificationRequest{}, err
	}

	switch v.SubjectType {
	case domain.SubjectCustomer:
		err = s.setCustomerStatus(ctx, v.SubjectID, domain.ApprovalStatusRejected)
	case domain.SubjectShop:
		err = s.setShopStatus(ctx, v.SubjectID, domain.ApprovalStatusRejected)
	}
	if err != nil {
		return domain.VerificationRequest{}, err
	}

	if err := s.verifications.Save(ctx, v); err != nil {
		return domain.VerificationRequest{}, fmt.Errorf("save verification: %w", err)
	}
	s.logger.WithFields(log.Fields{
		"verification_id": v.ID,
		"subject_id":      v.SubjectID,
		"reason":          reason,
	}).Info("verification rejected")
	return v, nil
}

// ListPending — заявки в очереди, старые первыми.
func (s *Service) ListPending(ctx context.Context) ([]domain.VerificationRequest, error) {
	return s.verifications.List(ctx, domain.ApprovalStatusPending)
}

// ListCompleted — решённые заявки, последние решения первыми.
func (s *Service) ListCompleted(ctx context.Context) ([]domain.VerificationRequest, error) {
	all, err := s.verifications.List(ctx, "")
	if err != nil {
		return nil, err
	}
	done := make([]domain.VerificationRequest, 0, len(all))
	for _, v := range all {
		if v.Status != domain.ApprovalStatusPending {
			done = append(done, v)
		}
	}
	sort.SliceStable(done, func(i, j int) bool { return done[i].DecidedAt.After(done[j].DecidedAt) })
	return done, nil
}

func (s *Service) approveCustomer(ctx context.Context, customerID string, limitMinor int64) error {
	if err := s.setCustomerStatus(ctx, customerID, domain.ApprovalStatusApproved); err != nil {
		return err
	}
	_, err := s.accounts.Open(ctx, customerID, limitMinor)
	if errors.Is(err, domain.ErrAccountAlreadyExists) {
		s.logger.WithField("customer_id", customerID).Warn("credit account already open, limit unchanged")
		return nil
	}
	if err != nil {
		return fmt.Errorf("open credit account: %w", err)
	}
	return nil
}

func (s *Service) subjectName(ctx context.Context, kind domain.SubjectType, id string) (string, error) {
	if kind == domain.SubjectCustomer {
		if id == "" {
			return "", domain.ErrCustomerRequired
		}
		c, err := s.directory.GetCustomer(ctx, id)
		if err != nil {
			return "", err
		}
		return c.Name, nil
	}
	if id == "" {
		return "", domain.ErrShopRequired
	}
	shop, err := s.directory.GetShop(ctx, id)
	if err != nil {
		return "", err
	}
	return shop.ShopName, nil
}

func (s *Service) setCustomerStatus(ctx context.Context, id string, status domain.ApprovalStatus) error {
	_, err := s.directory.SetCustomerStatus(ctx, id, status)
	return err
}

func (s *Service) setShopStatus(ctx context.Context, id string, status domain.ApprovalStatus) error {
	_, err := s.directory.SetShopStatus(ctx, id, status)
	return err
}

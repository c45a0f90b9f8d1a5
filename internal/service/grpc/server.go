package grpcsvc

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/creditmarket/internal/auth"
	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/metrics"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/cart"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/checkout"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/credit"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/dashboard"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/directory"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/onboarding"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/settlement"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/statement"
	cmv1 "github.com/vladislavdragonenkov/creditmarket/proto/creditmarket/v1"
)

const (
	defaultIdempotencyTTL = 24 * time.Hour
	defaultListLimit      = 100
)

// Services — прикладные сервисы, которые обслуживает API.
type Services struct {
	Carts        *cart.Service
	Checkout     *checkout.Service
	Credit       *credit.Service
	Statements   *statement.Service
	Settlements  *settlement.Service
	Onboarding   *onboarding.Service
	Directory    *directory.Service
	Dashboard    *dashboard.Service
	Transactions domain.TransactionRepository
}

// Server реализует creditmarket.v1.CreditMarketService.
type Server struct {
	cmv1.UnimplementedCreditMarketServiceServer

	svc            Services
	idempotency    domain.IdempotencyRepository
	idempotencyTTL time.Duration
	metrics        *metrics.CheckoutMetrics
	anonymous      *domain.Identity
	logger         *log.Entry
	now            func() time.Time
}

// Option настраивает Server.
type Option func(*Server)

// WithIdempotency включает idempotency-key для Checkout, RecordPayment и MarkSettled.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) Option {
	return func(s *Server) {
		s.idempotency = repo
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithAnonymousIdentity задаёт личность для запросов без токена. Используется,
// когда JWT-проверка выключена (локальный запуск, тесты).
func WithAnonymousIdentity(identity domain.Identity) Option {
	return func(s *Server) { s.anonymous = &identity }
}

func WithLogger(logger *log.Entry) Option {
	return func(s *Server) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer конструирует gRPC-сервер API.
func NewServer(svc Services, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		idempotencyTTL: defaultIdempotencyTTL,
		logger:         log.WithField("component", "grpc-api"),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy — роли, которым открыт каждый метод. Проверка "свои данные" делается в обработчиках.
func Policy() *auth.Policy {
	all := []domain.Role{domain.RoleCustomer, domain.RoleShop, domain.RoleAdmin}
	customer := []domain.Role{domain.RoleCustomer, domain.RoleAdmin}
	shop := []domain.Role{domain.RoleShop, domain.RoleAdmin}

	p := auth.NewPolicy().Public("/grpc.health.v1.Health/Check", "/grpc.health.v1.Health/Watch")
	for _, m := range []string{
		cmv1.MethodAddCartItem, cmv1.MethodUpdateCartItem, cmv1.MethodRemoveCartItem,
		cmv1.MethodGetCart, cmv1.MethodQuoteCart, cmv1.MethodCheckout,
		cmv1.MethodGetAccount, cmv1.MethodRecordPayment, cmv1.MethodListStatements,
	} {
		p.Allow(m, customer...)
	}
	p.Allow(cmv1.MethodListSettlements, shop...)
	for _, m := range []string{cmv1.MethodListTransactions, cmv1.MethodSubmitVerification, cmv1.MethodGetDashboard} {
		p.Allow(m, all...)
	}
	for _, m := range []string{
		cmv1.MethodGenerateStatement, cmv1.MethodGenerateSettlement, cmv1.MethodMarkSettled,
		cmv1.MethodDecideVerification, cmv1.MethodListVerifications, cmv1.MethodSearchDirectory,
		cmv1.MethodSetCreditLimit,
	} {
		p.Allow(m, domain.RoleAdmin)
	}
	return p
}

func (s *Server) identity(ctx context.Context) (domain.Identity, error) {
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		return identity, nil
	}
	if s.anonymous != nil {
		return *s.anonymous, nil
	}
	return domain.Identity{}, status.Error(codes.Unauthenticated, "identity is required")
}

// subject выбирает, над чьими данными работает запрос: клиент и магазин по умолчанию
// работают со своими, чужой id даёт PermissionDenied.
func (s *Server) subject(identity domain.Identity, role domain.Role, requested string) (string, error) {
	if requested == "" && identity.Role == role {
		requested = identity.SubjectID
	}
	if requested == "" {
		if role == domain.RoleShop {
			return "", status.Error(codes.InvalidArgument, domain.ErrShopRequired.Error())
		}
		return "", status.Error(codes.InvalidArgument, domain.ErrCustomerRequired.Error())
	}
	if !identity.CanActOn(role, requested) {
		return "", status.Errorf(codes.PermissionDenied, "%s %s cannot access %s %s",
			identity.Role, identity.SubjectID, role, requested)
	}
	return requested, nil
}

func (s *Server) customerFor(ctx context.Context, r request) (domain.Identity, string, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return domain.Identity{}, "", err
	}
	customerID, err := s.subject(identity, domain.RoleCustomer, r.str("customer_id"))
	return identity, customerID, err
}

func (s *Server) requireAdmin(ctx context.Context) (domain.Identity, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return domain.Identity{}, err
	}
	if identity.Role != domain.RoleAdmin {
		return domain.Identity{}, status.Error(codes.PermissionDenied, "admin role is required")
	}
	return identity, nil
}

func (s *Server) recordReplay(method string) {
	if s.metrics != nil && method == cmv1.MethodCheckout {
		s.metrics.RecordCheckout(metrics.ResultReplayed)
	}
}

var _ cmv1.CreditMarketServiceServer = (*Server)(nil)

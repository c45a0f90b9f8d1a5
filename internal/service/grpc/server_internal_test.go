package grpcsvc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/creditmarket/internal/auth"
	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

func TestToStatus(t *testing.T) {
	s := NewServer(Services{})

	tests := []struct {
		err  error
		code codes.Code
	}{
		{&domain.InsufficientCreditError{RequestedMinor: 10, AvailableMinor: 4}, codes.FailedPrecondition},
		{fmt.Errorf("reserve: %w", domain.ErrInvalidQuantity), codes.InvalidArgument},
		{domain.ErrEmptyCart, codes.FailedPrecondition},
		{domain.ErrOverpaymentNotAllowed, codes.FailedPrecondition},
		{domain.ErrAlreadySettled, codes.AlreadyExists},
		{domain.ErrSettlementMonthOpen, codes.FailedPrecondition},
		{fmt.Errorf("load: %w", domain.ErrStatementNotFound), codes.NotFound},
		{domain.ErrCartItemNotFound, codes.NotFound},
		{domain.ErrCreditInvariantViolated, codes.DataLoss},
		{fmt.Errorf("save: %w", domain.ErrVersionConflict), codes.Aborted},
		{domain.ErrPermissionDenied, codes.PermissionDenied},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{status.Error(codes.Unavailable, "down"), codes.Unavailable},
		{errors.New("disk on fire"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.code, status.Code(s.toStatus(tt.err, "Test")))
		})
	}
	require.NoError(t, s.toStatus(nil, "Test"))
}

func TestToStatus_InternalHidesCause(t *testing.T) {
	s := NewServer(Services{})
	err := s.toStatus(errors.New("password=hunter2"), "Checkout")
	require.NotContains(t, status.Convert(err).Message(), "hunter2")
}

func TestShortfallFromStatus(t *testing.T) {
	err := insufficientCreditStatus(&domain.InsufficientCreditError{RequestedMinor: 180000, AvailableMinor: 100000})
	shortfall, ok := ShortfallFromStatus(err)
	require.True(t, ok)
	require.Equal(t, int64(80000), shortfall)

	_, ok = ShortfallFromStatus(status.Error(codes.FailedPrecondition, domain.ErrEmptyCart.Error()))
	require.False(t, ok)
}

func TestRequest_Numbers(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{
		"qty":   3,
		"half":  1.5,
		"text":  "7",
		"huge":  float64(1 << 60),
		"month": "2024-03",
		"docs":  []any{"a.pdf", "b.pdf"},
	})
	require.NoError(t, err)
	r := newRequest(in)

	qty, err := r.int32("qty")
	require.NoError(t, err)
	require.Equal(t, int32(3), qty)

	missing, err := r.int64("absent")
	require.NoError(t, err)
	require.Zero(t, missing)

	for _, field := range []string{"half", "text", "huge"} {
		_, err = r.int64(field)
		require.Equal(t, codes.InvalidArgument, status.Code(err), field)
	}

	month, err := r.month("month")
	require.NoError(t, err)
	require.Equal(t, "2024-03", month.String())
	require.Equal(t, []string{"a.pdf", "b.pdf"}, r.strings("docs"))
}

func TestSubject(t *testing.T) {
	s := NewServer(Services{})
	customer := domain.Identity{Role: domain.RoleCustomer, SubjectID: "cust-1"}

	id, err := s.subject(customer, domain.RoleCustomer, "")
	require.NoError(t, err)
	require.Equal(t, "cust-1", id)

	_, err = s.subject(customer, domain.RoleCustomer, "cust-2")
	require.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = s.subject(domain.Identity{Role: domain.RoleAdmin}, domain.RoleShop, "")
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestIdentity_Anonymous(t *testing.T) {
	_, err := NewServer(Services{}).identity(context.Background())
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	s := NewServer(Services{}, WithAnonymousIdentity(domain.Identity{Role: domain.RoleAdmin, Name: "local"}))
	identity, err := s.identity(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, identity.Role)

	fromToken, err := s.identity(auth.WithIdentity(context.Background(), domain.Identity{Role: domain.RoleShop, SubjectID: "shop-1"}))
	require.NoError(t, err)
	require.Equal(t, "shop-1", fromToken.SubjectID)
}

func TestBuildIdempotencyRequestHash(t *testing.T) {
	req, err := structpb.NewStruct(map[string]any{"statement_id": "st-1", "amount_minor": 500})
	require.NoError(t, err)
	alice := domain.Identity{Role: domain.RoleCustomer, SubjectID: "cust-1"}

	h1, err := buildIdempotencyRequestHash("/m", alice, req)
	require.NoError(t, err)
	h2, err := buildIdempotencyRequestHash("/m", alice, req)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	other, err := buildIdempotencyRequestHash("/m", domain.Identity{Role: domain.RoleCustomer, SubjectID: "cust-2"}, req)
	require.NoError(t, err)
	require.NotEqual(t, h1, other)

	_, err = buildIdempotencyRequestHash("/m", alice, nil)
	require.Error(t, err)
}

func TestReadIdempotencyKey(t *testing.T) {
	_, err := readIdempotencyKey(context.Background())
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  k-1 "))
	key, err := readIdempotencyKey(ctx)
	require.NoError(t, err)
	require.Equal(t, "k-1", key)
}

func TestDecodeIdempotencyFailure(t *testing.T) {
	err := decodeIdempotencyFailure(domain.IdempotencyRecord{
		ResponseBody: []byte(`{"code":9,"message":"cart is empty"}`),
	})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
	require.Equal(t, "cart is empty", status.Convert(err).Message())

	err = decodeIdempotencyFailure(domain.IdempotencyRecord{StatusCode: int(codes.NotFound)})
	require.Equal(t, codes.NotFound, status.Code(err))

	err = decodeIdempotencyFailure(domain.IdempotencyRecord{})
	require.Equal(t, codes.Internal, status.Code(err))
}

package grpcsvc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/onboarding"
)

// SubmitVerification подаёт документы на проверку. Клиент и магазин подают только за себя.
func (s *Server) SubmitVerification(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	identity, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}

	kind := domain.SubjectType(r.str("subject_type"))
	if kind == "" {
		switch identity.Role {
		case domain.RoleCustomer:
			kind = domain.SubjectCustomer
		case domain.RoleShop:
			kind = domain.SubjectShop
		}
	}
	if !kind.Valid() {
		return nil, status.Error(codes.InvalidArgument, domain.ErrSubjectTypeInvalid.Error())
	}
	role := domain.RoleCustomer
	if kind == domain.SubjectShop {
		role = domain.RoleShop
	}
	subjectID, err := s.subject(identity, role, r.str("subject_id"))
	if err != nil {
		return nil, err
	}
	limit, err := r.int64("requested_limit_minor")
	if err != nil {
		return nil, err
	}

	v, err := s.svc.Onboarding.Submit(ctx, onboarding.SubmitRequest{
		SubjectType:         kind,
		SubjectID:           subjectID,
		Documents:           r.strings("documents"),
		RequestedLimitMinor: limit,
	})
	if err != nil {
		return nil, s.toStatus(err, "SubmitVerification")
	}
	return toStruct(object{"verification": verificationObject(v)})
}

// DecideVerification — decision: approve | reject. При одобрении клиента открывается счёт
// с limit_minor, запрошенным или стандартным лимитом.
func (s *Server) DecideVerification(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	r := newRequest(in)
	id := r.str("verification_id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "verification_id is required")
	}

	var (
		v   domain.VerificationRequest
		err error
	)
	switch r.str("decision") {
	case "approve":
		var limit int64
		if limit, err = r.int64("limit_minor"); err != nil {
			return nil, err
		}
		v, err = s.svc.Onboarding.Approve(ctx, id, limit)
	case "reject":
		v, err = s.svc.Onboarding.Reject(ctx, id, r.str("reason"))
	default:
		return nil, status.Error(codes.InvalidArgument, "decision must be approve or reject")
	}
	if err != nil {
		return nil, s.toStatus(err, "DecideVerification")
	}
	return toStruct(object{"verification": verificationObject(v)})
}

// ListVerifications — status: pending (по умолчанию) или completed.
func (s *Server) ListVerifications(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	var (
		list []domain.VerificationRequest
		err  error
	)
	switch newRequest(in).str("status") {
	case "", "pending":
		list, err = s.svc.Onboarding.ListPending(ctx)
	case "completed":
		list, err = s.svc.Onboarding.ListCompleted(ctx)
	default:
		return nil, status.Error(codes.InvalidArgument, "status must be pending or completed")
	}
	if err != nil {
		return nil, s.toStatus(err, "ListVerifications")
	}
	return toStruct(object{"verifications": listOf(list, verificationObject)})
}

// SearchDirectory ищет клиентов и магазины по имени, email или телефону.
func (s *Server) SearchDirectory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	r := newRequest(in)
	limit, err := r.limit()
	if err != nil {
		return nil, err
	}

	result, err := s.svc.Directory.Search(ctx, domain.SubjectType(r.str("kind")), domain.DirectoryQuery{
		Text:   r.str("text"),
		Status: domain.ApprovalStatus(r.str("status")),
		Limit:  listLimit(limit),
	})
	if err != nil {
		return nil, s.toStatus(err, "SearchDirectory")
	}
	return toStruct(searchObject(result))
}

// GetDashboard собирает главный экран по роли вызывающего.
func (s *Server) GetDashboard(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	view, err := s.svc.Dashboard.Get(ctx, identity)
	if err != nil {
		return nil, s.toStatus(err, "GetDashboard")
	}
	return toStruct(dashboardObject(view))
}

package grpcsvc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	cmv1 "github.com/vladislavdragonenkov/creditmarket/proto/creditmarket/v1"
)

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

// ListTransactions — журнал покупок. Клиент видит свои покупки, магазин свои продажи.
func (s *Server) ListTransactions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	identity, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}

	filter := domain.TransactionFilter{
		CustomerID: r.str("customer_id"),
		ShopID:     r.str("shop_id"),
		Status:     domain.TransactionStatus(r.str("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown transaction status %q", filter.Status)
	}
	switch identity.Role {
	case domain.RoleCustomer:
		if filter.CustomerID, err = s.subject(identity, domain.RoleCustomer, filter.CustomerID); err != nil {
			return nil, err
		}
	case domain.RoleShop:
		if filter.ShopID, err = s.subject(identity, domain.RoleShop, filter.ShopID); err != nil {
			return nil, err
		}
	}

	month, err := r.month("month")
	if err != nil {
		return nil, s.toStatus(err, "ListTransactions")
	}
	if !month.IsZero() {
		filter.From, filter.Before = month.Start(), month.End()
	}
	limit, err := r.limit()
	if err != nil {
		return nil, err
	}
	filter.Limit = listLimit(limit)

	txs, err := s.svc.Transactions.List(ctx, filter)
	if err != nil {
		return nil, s.toStatus(err, "ListTransactions")
	}
	return toStruct(object{
		"transactions": listOf(txs, transactionObject),
		"total_minor":  domain.SumTotals(txs),
	})
}

// GenerateStatement формирует или пересчитывает выписку клиента за месяц.
func (s *Server) GenerateStatement(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	r := newRequest(in)
	month, err := r.month("month")
	if err != nil || month.IsZero() {
		return nil, status.Error(codes.InvalidArgument, domain.ErrInvalidMonth.Error())
	}

	st, err := s.svc.Statements.Generate(ctx, r.str("customer_id"), month)
	if err != nil {
		return nil, s.toStatus(err, "GenerateStatement")
	}
	return toStruct(object{"statement": statementObject(st)})
}

// RecordPayment принимает платёж по выписке и возвращает оплаченную сумму в лимит.
func (s *Server) RecordPayment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	identity, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	statementID := r.str("statement_id")
	if statementID == "" {
		return nil, status.Error(codes.InvalidArgument, "statement_id is required")
	}
	amount, err := r.int64("amount_minor")
	if err != nil {
		return nil, err
	}

	current, err := s.svc.Statements.Get(ctx, statementID)
	if err != nil {
		return nil, s.toStatus(err, "RecordPayment")
	}
	if !identity.CanActOn(domain.RoleCustomer, current.CustomerID) {
		return nil, status.Error(codes.PermissionDenied, "statement belongs to another customer")
	}

	return s.withIdempotency(ctx, cmv1.MethodRecordPayment, identity, in, func(ctx context.Context) (*structpb.Struct, error) {
		st, account, err := s.svc.Statements.RecordPayment(ctx, statementID, amount)
		if err != nil {
			return nil, s.toStatus(err, "RecordPayment")
		}
		return toStruct(object{
			"statement": statementObject(st),
			"account":   accountObject(account),
		})
	})
}

func (s *Server) ListStatements(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	identity, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}

	filter := domain.StatementFilter{
		CustomerID: r.str("customer_id"),
		Status:     domain.PaymentStatus(r.str("status")),
	}
	if identity.Role != domain.RoleAdmin {
		if filter.CustomerID, err = s.subject(identity, domain.RoleCustomer, filter.CustomerID); err != nil {
			return nil, err
		}
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown payment status %q", filter.Status)
	}
	if filter.Month, err = r.month("month"); err != nil {
		return nil, s.toStatus(err, "ListStatements")
	}
	limit, err := r.limit()
	if err != nil {
		return nil, err
	}
	filter.Limit = listLimit(limit)

	list, err := s.svc.Statements.List(ctx, filter)
	if err != nil {
		return nil, s.toStatus(err, "ListStatements")
	}
	return toStruct(object{"statements": listOf(list, statementObject)})
}

// GenerateSettlement пересчитывает выплату магазину; проведённая или закрытая выплата не меняется.
func (s *Server) GenerateSettlement(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	r := newRequest(in)
	month, err := r.month("month")
	if err != nil || month.IsZero() {
		return nil, status.Error(codes.InvalidArgument, domain.ErrInvalidMonth.Error())
	}

	st, err := s.svc.Settlements.Generate(ctx, r.str("shop_id"), month)
	if err != nil {
		return nil, s.toStatus(err, "GenerateSettlement")
	}
	return toStruct(object{"settlement": settlementObject(st)})
}

// MarkSettled проводит выплату; повтор без idempotency-key даёт AlreadyExists.
func (s *Server) MarkSettled(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	identity, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	settlementID := newRequest(in).str("settlement_id")
	if settlementID == "" {
		return nil, status.Error(codes.InvalidArgument, "settlement_id is required")
	}

	return s.withIdempotency(ctx, cmv1.MethodMarkSettled, identity, in, func(ctx context.Context) (*structpb.Struct, error) {
		st, err := s.svc.Settlements.MarkSettled(ctx, settlementID)
		if err != nil {
			return nil, s.toStatus(err, "MarkSettled")
		}
		return toStruct(object{"settlement": settlementObject(st)})
	})
}

func (s *Server) ListSettlements(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	identity, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}

	filter := domain.SettlementFilter{
		ShopID: r.str("shop_id"),
		Status: domain.SettlementStatus(r.str("status")),
	}
	if identity.Role != domain.RoleAdmin {
		if filter.ShopID, err = s.subject(identity, domain.RoleShop, filter.ShopID); err != nil {
			return nil, err
		}
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown settlement status %q", filter.Status)
	}
	if filter.Month, err = r.month("month"); err != nil {
		return nil, s.toStatus(err, "ListSettlements")
	}
	limit, err := r.limit()
	if err != nil {
		return nil, err
	}
	filter.Limit = listLimit(limit)

	list, err := s.svc.Settlements.List(ctx, filter)
	if err != nil {
		return nil, s.toStatus(err, "ListSettlements")
	}
	return toStruct(object{"settlements": listOf(list, settlementObject)})
}

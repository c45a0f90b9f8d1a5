package grpcsvc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	cmv1 "github.com/vladislavdragonenkov/creditmarket/proto/creditmarket/v1"
)

// AddCartItem добавляет товар; qty по умолчанию 1.
func (s *Server) AddCartItem(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	_, customerID, err := s.customerFor(ctx, r)
	if err != nil {
		return nil, err
	}
	qty, err := r.int32("qty")
	if err != nil {
		return nil, err
	}
	if _, present := r.fields["qty"]; !present {
		qty = 1
	}

	c, err := s.svc.Carts.AddItem(ctx, customerID, r.str("product_id"), qty)
	if err != nil {
		return nil, s.toStatus(err, "AddCartItem")
	}
	return toStruct(cartObject(c))
}

// UpdateCartItem меняет количество на delta, не опуская его ниже 1; удаление через RemoveCartItem.
func (s *Server) UpdateCartItem(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	_, customerID, err := s.customerFor(ctx, r)
	if err != nil {
		return nil, err
	}
	delta, err := r.int32("delta")
	if err != nil {
		return nil, err
	}
	if delta == 0 {
		return nil, status.Error(codes.InvalidArgument, "delta must not be zero")
	}

	c, err := s.svc.Carts.UpdateQuantity(ctx, customerID, r.str("product_id"), delta)
	if err != nil {
		return nil, s.toStatus(err, "UpdateCartItem")
	}
	return toStruct(cartObject(c))
}

func (s *Server) RemoveCartItem(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	_, customerID, err := s.customerFor(ctx, r)
	if err != nil {
		return nil, err
	}
	c, err := s.svc.Carts.RemoveItem(ctx, customerID, r.str("product_id"))
	if err != nil {
		return nil, s.toStatus(err, "RemoveCartItem")
	}
	return toStruct(cartObject(c))
}

func (s *Server) GetCart(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	_, customerID, err := s.customerFor(ctx, newRequest(in))
	if err != nil {
		return nil, err
	}
	c, err := s.svc.Carts.Get(ctx, customerID)
	if err != nil {
		return nil, s.toStatus(err, "GetCart")
	}
	return toStruct(cartObject(c))
}

// QuoteCart показывает, хватит ли лимита на корзину, ничего не резервируя.
func (s *Server) QuoteCart(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	_, customerID, err := s.customerFor(ctx, newRequest(in))
	if err != nil {
		return nil, err
	}
	q, err := s.svc.Carts.Quote(ctx, customerID)
	if err != nil {
		return nil, s.toStatus(err, "QuoteCart")
	}
	return toStruct(quoteObject(q))
}

// Checkout оформляет корзину. Нехватка лимита — FailedPrecondition с деталями shortfall.
func (s *Server) Checkout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	identity, customerID, err := s.customerFor(ctx, newRequest(in))
	if err != nil {
		return nil, err
	}
	return s.withIdempotency(ctx, cmv1.MethodCheckout, identity, in, func(ctx context.Context) (*structpb.Struct, error) {
		receipt, err := s.svc.Checkout.Checkout(ctx, customerID)
		if err != nil {
			return nil, s.toStatus(err, "Checkout")
		}
		return toStruct(receiptObject(receipt))
	})
}

// GetAccount возвращает лимит и использование; include_history добавляет журнал движений.
func (s *Server) GetAccount(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	_, customerID, err := s.customerFor(ctx, r)
	if err != nil {
		return nil, err
	}
	account, err := s.svc.Credit.Get(ctx, customerID)
	if err != nil {
		return nil, s.toStatus(err, "GetAccount")
	}

	out := object{"account": accountObject(account)}
	if r.boolean("include_history") {
		events, err := s.svc.Credit.History(ctx, customerID)
		if err != nil {
			return nil, s.toStatus(err, "GetAccount")
		}
		out["history"] = listOf(events, ledgerObject)
	}
	return toStruct(out)
}

// SetCreditLimit меняет лимит клиента; новый лимит не может быть меньше использованного.
func (s *Server) SetCreditLimit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	r := newRequest(in)
	customerID := r.str("customer_id")
	if customerID == "" {
		return nil, status.Error(codes.InvalidArgument, domain.ErrCustomerRequired.Error())
	}
	limit, err := r.int64("limit_minor")
	if err != nil {
		return nil, err
	}

	account, err := s.svc.Credit.SetLimit(ctx, customerID, limit)
	if err != nil {
		return nil, s.toStatus(err, "SetCreditLimit")
	}
	return toStruct(object{"account": accountObject(account)})
}

package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

var invalidArgumentErrors = []error{
	domain.ErrCustomerRequired,
	domain.ErrShopRequired,
	domain.ErrProductRequired,
	domain.ErrInvalidQuantity,
	domain.ErrAmountNegative,
	domain.ErrLinePriceInvalid,
	domain.ErrPaymentAmountInvalid,
	domain.ErrCreditLimitNegative,
	domain.ErrInvalidMonth,
	domain.ErrInvalidRole,
	domain.ErrSubjectTypeInvalid,
	domain.ErrApprovalStatusInvalid,
	domain.ErrReasonRequired,
	domain.ErrNameRequired,
}

var failedPreconditionErrors = []error{
	domain.ErrEmptyCart,
	domain.ErrOverpaymentNotAllowed,
	domain.ErrCreditLimitBelowUsage,
	domain.ErrProductUnavailable,
	domain.ErrCustomerNotApproved,
	domain.ErrVerificationAlreadyDecided,
	domain.ErrInvalidTransactionTransition,
	domain.ErrSettlementMonthOpen,
}

var alreadyExistsErrors = []error{
	domain.ErrAlreadySettled,
	domain.ErrAlreadyExists,
	domain.ErrAccountAlreadyExists,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// toStatus переводит доменную ошибку в gRPC-статус. Непредвиденные ошибки
// логируются и отдаются клиенту как Internal без подробностей.
func (s *Server) toStatus(err error, operation string) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var shortfall *domain.InsufficientCreditError
	switch {
	case errors.As(err, &shortfall):
		return insufficientCreditStatus(shortfall)
	case errors.Is(err, domain.ErrCreditInvariantViolated):
		s.logger.WithError(err).WithField("operation", operation).Error("credit invariant violated")
		return status.Error(codes.DataLoss, err.Error())
	case isAny(err, invalidArgumentErrors):
		return status.Error(codes.InvalidArgument, err.Error())
	case isAny(err, failedPreconditionErrors):
		return status.Error(codes.FailedPrecondition, err.Error())
	case isAny(err, alreadyExistsErrors):
		return status.Error(codes.AlreadyExists, err.Error())
	case domain.IsNotFound(err), errors.Is(err, domain.ErrCartItemNotFound):
		return status.Error(codes.NotFound, err.Error())
	case domain.IsVersionConflict(err):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrPermissionDenied):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.WithError(err).WithFields(log.Fields{
			"operation": operation,
		}).Error("request failed")
		return status.Errorf(codes.Internal, "%s failed", operation)
	}
}

// insufficientCreditStatus — FailedPrecondition с деталями для баннера о нехватке лимита.
func insufficientCreditStatus(e *domain.InsufficientCreditError) error {
	st := status.New(codes.FailedPrecondition, e.Error())
	detail, err := structpb.NewStruct(object{
		"reason":          "INSUFFICIENT_CREDIT",
		"requested_minor": e.RequestedMinor,
		"available_minor": e.AvailableMinor,
		"shortfall_minor": e.ShortfallMinor(),
	})
	if err != nil {
		return st.Err()
	}
	withDetails, err := st.WithDetails(detail)
	if err != nil {
		return st.Err()
	}
	return withDetails.Err()
}

// ShortfallFromStatus достаёт нехватку лимита из ошибки Checkout на стороне клиента.
func ShortfallFromStatus(err error) (int64, bool) {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.FailedPrecondition {
		return 0, false
	}
	for _, d := range st.Details() {
		detail, ok := d.(*structpb.Struct)
		if !ok || detail.GetFields()["reason"].GetStringValue() != "INSUFFICIENT_CREDIT" {
			continue
		}
		return int64(detail.GetFields()["shortfall_minor"].GetNumberValue()), true
	}
	return 0, false
}

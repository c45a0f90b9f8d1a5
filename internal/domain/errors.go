package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего идентификатора магазина.
	ErrShopRequired = errors.New("shop_id is required")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductRequired = errors.New("product_id is required")
	// Ошибка отсутствия хотя бы одной позиции в транзакции.
	ErrLinesRequired = errors.New("transaction must contain at least one line")
	// Ошибка отрицательной суммы.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка, если цена позиции отрицательная.
	ErrLinePriceInvalid = errors.New("line price must be non-negative")
	// Ошибка несоответствия суммы транзакции и сумм позиций.
	ErrAmountMismatch = errors.New("transaction amount does not match lines sum")

	// ErrInvalidQuantity возвращается корзиной при количестве < 1.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrEmptyCart возвращается при попытке оформить пустую корзину.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCartItemNotFound — позиции с таким товаром нет в корзине.
	ErrCartItemNotFound = errors.New("cart item not found")
	// ErrInsufficientCredit — сумма покупки превышает доступный лимит.
	ErrInsufficientCredit = errors.New("insufficient credit")
	// ErrCreditLimitNegative — лимит не может быть отрицательным.
	ErrCreditLimitNegative = errors.New("credit limit must be non-negative")
	// ErrCreditLimitBelowUsage — новый лимит меньше уже использованного кредита.
	ErrCreditLimitBelowUsage = errors.New("credit limit is below used credit")
	// ErrCreditInvariantViolated — used + available != limit. Это баг хранилища или кода, а не ошибка пользователя.
	ErrCreditInvariantViolated = errors.New("credit account invariant violated")

	// ErrPaymentAmountInvalid — сумма платежа должна быть положительной.
	ErrPaymentAmountInvalid = errors.New("payment amount must be greater than zero")
	// ErrOverpaymentNotAllowed — платёж превышает остаток к оплате по выписке.
	ErrOverpaymentNotAllowed = errors.New("payment exceeds remaining amount due")
	// ErrAlreadySettled — повторная выплата магазину.
	ErrAlreadySettled = errors.New("settlement already settled")
	// ErrSettlementMonthOpen — выплату нельзя провести, пока сумма не посчитана по итогам всего месяца.
	ErrSettlementMonthOpen = errors.New("settlement month is not closed yet")
	// ErrSettledAtRequired — выплата в статусе settled без даты проведения.
	ErrSettledAtRequired = errors.New("settled_at is required for settled settlement")

	// ErrInvalidTransactionTransition — недопустимый переход статуса транзакции.
	ErrInvalidTransactionTransition = errors.New("invalid transaction status transition")
	// ErrInvalidMonth — месяц не в формате YYYY-MM.
	ErrInvalidMonth = errors.New("month must be in YYYY-MM format")
	// ErrInvalidRole — неизвестная роль.
	ErrInvalidRole = errors.New("invalid role")
	// ErrPermissionDenied — роль не может выполнять операцию над чужими данными.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrProductUnavailable — товара нет в наличии или магазин не одобрен.
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrCustomerNotApproved — у клиента нет одобренного кредитного счёта.
	ErrCustomerNotApproved = errors.New("customer is not approved")
	// ErrVerificationAlreadyDecided — заявка уже одобрена или отклонена.
	ErrVerificationAlreadyDecided = errors.New("verification already decided")
	// ErrSubjectTypeInvalid — заявку можно подать только на клиента или магазин.
	ErrSubjectTypeInvalid = errors.New("subject type must be customer or shop")
	// ErrApprovalStatusInvalid — неизвестный статус проверки.
	ErrApprovalStatusInvalid = errors.New("invalid approval status")
	// ErrReasonRequired — отказ без причины.
	ErrReasonRequired = errors.New("rejection reason is required")
	// ErrNameRequired — пустое имя клиента, магазина или товара.
	ErrNameRequired = errors.New("name is required")

	// Ошибки поиска в репозиториях.
	ErrAccountNotFound      = errors.New("credit account not found")
	ErrAccountAlreadyExists = errors.New("credit account already exists")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrStatementNotFound    = errors.New("statement not found")
	ErrSettlementNotFound   = errors.New("settlement not found")
	ErrCartNotFound         = errors.New("cart not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrShopNotFound         = errors.New("shop not found")
	ErrVerificationNotFound = errors.New("verification request not found")
	// ErrAlreadyExists возвращается при нарушении уникальности (customer+month, shop+month и т.п.).
	ErrAlreadyExists = errors.New("record already exists")

	// ErrVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrVersionConflict = errors.New("version conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки идемпотентности.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
)

// InsufficientCreditError несёт детали отказа, нужные для баннера "не хватает лимита".
type InsufficientCreditError struct {
	RequestedMinor int64
	AvailableMinor int64
}

// ShortfallMinor — сколько не хватает до покупки.
func (e *InsufficientCreditError) ShortfallMinor() int64 {
	return e.RequestedMinor - e.AvailableMinor
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit: requested %d, available %d, shortfall %d",
		e.RequestedMinor, e.AvailableMinor, e.ShortfallMinor())
}

func (e *InsufficientCreditError) Unwrap() error {
	return ErrInsufficientCredit
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsIdempotencyConflict сообщает, что ключ уже занят (возможно, другим запросом).
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// IsNotFound объединяет все "не найдено" ошибки репозиториев.
func IsNotFound(err error) bool {
	for _, target := range []error{
		ErrAccountNotFound, ErrTransactionNotFound, ErrStatementNotFound, ErrSettlementNotFound,
		ErrCartNotFound, ErrProductNotFound, ErrCustomerNotFound, ErrShopNotFound,
		ErrVerificationNotFound, ErrIdempotencyKeyNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ShortfallOf извлекает нехватку лимита из ошибки, если она есть.
func ShortfallOf(err error) (int64, bool) {
	var ice *InsufficientCreditError
	if errors.As(err, &ice) {
		return ice.ShortfallMinor(), true
	}
	return 0, false
}

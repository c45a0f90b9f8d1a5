package domain

import (
	"strings"
	"time"
)

// ApprovalStatus — статус проверки клиента или магазина.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected:
		return true
	default:
		return false
	}
}

// Customer — покупатель маркетплейса.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Status    ApprovalStatus
	CreatedAt time.Time
}

// Shop — продавец.
type Shop struct {
	ID        string
	ShopName  string
	OwnerName string
	Email     string
	Phone     string
	Category  string
	Status    ApprovalStatus
	CreatedAt time.Time
}

// Product — товар магазина.
type Product struct {
	ID         string
	ShopID     string
	Name       string
	Category   string
	PriceMinor int64
	InStock    bool
}

// SubjectType — кого проверяют.
type SubjectType string

const (
	SubjectCustomer SubjectType = "customer"
	SubjectShop     SubjectType = "shop"
)

// Valid проверяет тип субъекта.
func (t SubjectType) Valid() bool {
	return t == SubjectCustomer || t == SubjectShop
}

// VerificationRequest — заявка на проверку документов.
type VerificationRequest struct {
	ID          string
	SubjectType SubjectType
	SubjectID   string
	Name        string
	Documents   []string
	// RequestedLimitMinor — запрошенный кредитный лимит (только для клиентов).
	RequestedLimitMinor int64
	Status              ApprovalStatus
	Reason              string
	SubmittedAt         time.Time
	DecidedAt           time.Time
}

// Decide фиксирует решение администратора.
func (v *VerificationRequest) Decide(status ApprovalStatus, reason string, now time.Time) error {
	if v.Status != ApprovalStatusPending {
		return ErrVerificationAlreadyDecided
	}
	v.Status = status
	v.Reason = reason
	v.DecidedAt = now
	return nil
}

// DirectoryQuery — поиск по имени, email и телефону без учёта регистра.
type DirectoryQuery struct {
	Text   string
	Status ApprovalStatus
	Limit  int
}

// MatchCustomer применяет запрос к клиенту.
func (q DirectoryQuery) MatchCustomer(c Customer) bool {
	if q.Status != "" && c.Status != q.Status {
		return false
	}
	return containsFold(q.Text, c.Name, c.Email, c.Phone)
}

// MatchShop применяет запрос к магазину.
func (q DirectoryQuery) MatchShop(s Shop) bool {
	if q.Status != "" && s.Status != q.Status {
		return false
	}
	return containsFold(q.Text, s.ShopName, s.OwnerName, s.Email, s.Phone)
}

func containsFold(needle string, fields ...string) bool {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

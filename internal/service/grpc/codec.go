package grpcsvc

import (
	"math"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/cart"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/checkout"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/dashboard"
	"github.com/vladislavdragonenkov/creditmarket/internal/service/directory"
)

// Суммы передаются числами JSON; точно представимы целые до 2^53.
const maxExactMinor = 1 << 53

// request читает поля запроса. Отсутствующее поле равно нулевому значению.
type request struct {
	fields map[string]*structpb.Value
}

func newRequest(in *structpb.Struct) request {
	if in == nil {
		return request{}
	}
	return request{fields: in.GetFields()}
}

func (r request) str(name string) string {
	return strings.TrimSpace(r.fields[name].GetStringValue())
}

func (r request) boolean(name string) bool {
	return r.fields[name].GetBoolValue()
}

func (r request) int64(name string) (int64, error) {
	v, ok := r.fields[name]
	if !ok || v.GetKind() == nil {
		return 0, nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return 0, nil
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", name)
	}
	f := n.NumberValue
	if f != math.Trunc(f) || math.Abs(f) > maxExactMinor {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer within ±2^53", name)
	}
	return int64(f), nil
}

func (r request) int32(name string) (int32, error) {
	n, err := r.int64(name)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, status.Errorf(codes.InvalidArgument, "%s is out of range", name)
	}
	return int32(n), nil
}

func (r request) strings(name string) []string {
	list := r.fields[name].GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}

// month — пустая строка даёт нулевой месяц (без фильтра).
func (r request) month(name string) (domain.Month, error) {
	raw := r.str(name)
	if raw == "" {
		return domain.Month{}, nil
	}
	return domain.ParseMonth(raw)
}

func (r request) limit() (int, error) {
	n, err := r.int64("limit")
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, status.Error(codes.InvalidArgument, "limit must be non-negative")
	}
	return int(n), nil
}

type object = map[string]any

func toStruct(fields object) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func timeValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func listOf[T any](items []T, convert func(T) object) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, convert(item))
	}
	return out
}

func stringList(items []string) []any {
	out := make([]any, 0, len(items))
	for _, s := range items {
		out = append(out, s)
	}
	return out
}

func accountObject(a domain.CreditAccount) object {
	return object{
		"customer_id":            a.CustomerID,
		"credit_limit_minor":     a.CreditLimitMinor,
		"credit_used_minor":      a.CreditUsedMinor,
		"credit_available_minor": a.CreditAvailableMinor,
		"version":                a.Version,
		"updated_at":             timeValue(a.UpdatedAt),
	}
}

func ledgerObject(e domain.LedgerEvent) object {
	return object{
		"type":         e.Type,
		"amount_minor": e.AmountMinor,
		"reference":    e.Reference,
		"reason":       e.Reason,
		"occurred_at":  timeValue(e.Occurred),
	}
}

func cartObject(c domain.Cart) object {
	lines := make([]any, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, object{
			"product_id":       l.ProductID,
			"shop_id":          l.ShopID,
			"product_name":     l.ProductName,
			"unit_price_minor": l.UnitPriceMinor,
			"qty":              l.Qty,
			"extended_minor":   l.ExtendedMinor(),
		})
	}
	return object{
		"cart_id":        c.ID,
		"customer_id":    c.CustomerID,
		"lines":          lines,
		"subtotal_minor": c.Subtotal(),
		"updated_at":     timeValue(c.UpdatedAt),
	}
}

func quoteObject(q cart.Quote) object {
	return object{
		"subtotal_minor":  q.SubtotalMinor,
		"available_minor": q.AvailableMinor,
		"can_afford":      q.CanAfford,
		"shortfall_minor": q.ShortfallMinor,
	}
}

func transactionObject(t domain.Transaction) object {
	lines := make([]any, 0, len(t.Lines))
	for _, l := range t.Lines {
		lines = append(lines, object{
			"product_id":       l.ProductID,
			"product_name":     l.ProductName,
			"qty":              l.Qty,
			"unit_price_minor": l.UnitPriceMinor,
		})
	}
	return object{
		"transaction_id":     t.ID,
		"checkout_id":        t.CheckoutID,
		"customer_id":        t.CustomerID,
		"shop_id":            t.ShopID,
		"lines":              lines,
		"total_amount_minor": t.TotalAmountMinor,
		"status":             string(t.Status),
		"created_at":         timeValue(t.CreatedAt),
	}
}

func receiptObject(r checkout.Receipt) object {
	return object{
		"checkout_id":  r.CheckoutID,
		"total_minor":  r.TotalMinor,
		"replayed":     r.Replayed,
		"account":      accountObject(r.Account),
		"transactions": listOf(r.Transactions, transactionObject),
	}
}

func statementObject(s domain.MonthlyStatement) object {
	return object{
		"statement_id":      s.ID,
		"customer_id":       s.CustomerID,
		"month":             s.Month.String(),
		"total_due_minor":   s.TotalDueMinor,
		"paid_amount_minor": s.PaidAmountMinor,
		"remaining_minor":   s.RemainingMinor(),
		"due_date":          timeValue(s.DueDate),
		"payment_status":    string(s.PaymentStatus),
		"cutoff_at":         timeValue(s.CutoffAt),
		"version":           s.Version,
	}
}

func settlementObject(s domain.ShopSettlement) object {
	return object{
		"settlement_id": s.ID,
		"shop_id":       s.ShopID,
		"month":         s.Month.String(),
		"amount_minor":  s.AmountMinor,
		"status":        string(s.Status),
		"frozen":        s.Frozen(),
		"settled_at":    timeValue(s.SettledAt),
		"cutoff_at":     timeValue(s.CutoffAt),
	}
}

func verificationObject(v domain.VerificationRequest) object {
	return object{
		"verification_id":       v.ID,
		"subject_type":          string(v.SubjectType),
		"subject_id":            v.SubjectID,
		"name":                  v.Name,
		"documents":             stringList(v.Documents),
		"requested_limit_minor": v.RequestedLimitMinor,
		"status":                string(v.Status),
		"reason":                v.Reason,
		"submitted_at":          timeValue(v.SubmittedAt),
		"decided_at":            timeValue(v.DecidedAt),
	}
}

func customerObject(c domain.Customer) object {
	return object{
		"customer_id": c.ID,
		"name":        c.Name,
		"email":       c.Email,
		"phone":       c.Phone,
		"status":      string(c.Status),
	}
}

func shopObject(s domain.Shop) object {
	return object{
		"shop_id":    s.ID,
		"shop_name":  s.ShopName,
		"owner_name": s.OwnerName,
		"email":      s.Email,
		"phone":      s.Phone,
		"category":   s.Category,
		"status":     string(s.Status),
	}
}

func searchObject(r directory.SearchResult) object {
	return object{
		"customers": listOf(r.Customers, customerObject),
		"shops":     listOf(r.Shops, shopObject),
	}
}

func dashboardObject(v dashboard.View) object {
	out := object{"role": v.Role.String()}
	switch {
	case v.Customer != nil:
		out["customer"] = object{
			"account":             accountObject(v.Customer.Account),
			"recent_transactions": listOf(v.Customer.RecentTransactions, transactionObject),
			"open_statements":     listOf(v.Customer.OpenStatements, statementObject),
		}
	case v.Shop != nil:
		out["shop"] = object{
			"total_sales_minor": v.Shop.TotalSalesMinor,
			"order_count":       v.Shop.OrderCount,
			"settlements":       listOf(v.Shop.Settlements, settlementObject),
		}
	case v.Admin != nil:
		out["admin"] = object{
			"pending_verifications":  v.Admin.PendingVerifications,
			"customer_count":         v.Admin.CustomerCount,
			"shop_count":             v.Admin.ShopCount,
			"pending_payments_minor": v.Admin.PendingPaymentsMinor,
			"collected_minor":        v.Admin.CollectedMinor,
			"pending_payouts_minor":  v.Admin.PendingPayoutsMinor,
		}
	}
	return out
}

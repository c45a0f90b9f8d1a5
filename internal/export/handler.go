package export

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/creditmarket/internal/auth"
	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

// Форматы выгрузки выписки.
const (
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
)

// RoutePattern — путь выгрузки для http.ServeMux.
const RoutePattern = "GET /v1/statements/{id}/export"

// StatementSource — выписка и покупки, вошедшие в неё.
type StatementSource interface {
	Get(ctx context.Context, id string) (domain.MonthlyStatement, error)
	Transactions(ctx context.Context, st domain.MonthlyStatement) ([]domain.Transaction, error)
}

// CustomerSource — имя клиента для шапки документа.
type CustomerSource interface {
	GetCustomer(ctx context.Context, id string) (domain.Customer, error)
}

// Handler отдаёт выписку файлом. Клиент видит только свои выписки, админ — любые.
type Handler struct {
	statements StatementSource
	customers  CustomerSource
	anonymous  *domain.Identity
	logger     *log.Entry
}

// NewHandler создаёт обработчик выгрузки. customers может быть nil.
func NewHandler(statements StatementSource, customers CustomerSource, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "statement-export")
	}
	return &Handler{statements: statements, customers: customers, logger: logger}
}

// WithAnonymousIdentity задаёт identity для режима без аутентификации.
func (h *Handler) WithAnonymousIdentity(identity domain.Identity) *Handler {
	h.anonymous = &identity
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		if h.anonymous == nil {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		identity = *h.anonymous
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = FormatPDF
	}
	if format != FormatPDF && format != FormatXLSX {
		http.Error(w, fmt.Sprintf("unsupported format %q", format), http.StatusBadRequest)
		return
	}

	st, err := h.statements.Get(ctx, r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if !identity.CanActOn(domain.RoleCustomer, st.CustomerID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	doc, err := h.document(ctx, st)
	if err != nil {
		h.fail(w, err)
		return
	}

	var (
		body        []byte
		contentType string
	)
	switch format {
	case FormatXLSX:
		body, err = StatementXLSX(doc)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		body, err = StatementPDF(doc)
		contentType = "application/pdf"
	}
	if err != nil {
		h.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="statement-%s-%s.%s"`, st.CustomerID, st.Month, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) document(ctx context.Context, st domain.MonthlyStatement) (StatementDocument, error) {
	txs, err := h.statements.Transactions(ctx, st)
	if err != nil {
		return StatementDocument{}, err
	}
	doc := StatementDocument{Statement: st, Transactions: txs}
	if h.customers != nil {
		if c, err := h.customers.GetCustomer(ctx, st.CustomerID); err == nil {
			doc.CustomerName = c.Name
		}
	}
	return doc, nil
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrStatementNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.logger.WithError(err).Error("statement export failed")
	http.Error(w, "export failed", http.StatusInternalServerError)
}

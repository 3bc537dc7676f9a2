package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/journals"
	"github.com/textile-erp/ledger/internal/accounting/posting"
	"github.com/textile-erp/ledger/internal/accounting/shared"
	"github.com/textile-erp/ledger/internal/platform/httpx"
	internalShared "github.com/textile-erp/ledger/internal/shared"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyModule = "accounting.events"
	maxPageSize       = 200
)

// IdempotencyPort remembers processed request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, company, key, module string) error
	Delete(ctx context.Context, company, key string) error
}

// Handler exposes the ledger over HTTP/JSON.
type Handler struct {
	logger         *slog.Logger
	registry       *Registry
	idempotency    IdempotencyPort
	validator      *validator.Validate
	defaultCompany string
}

// NewHandler builds a Handler. idempotency may be nil.
func NewHandler(logger *slog.Logger, registry *Registry, idempotency IdempotencyPort, defaultCompany string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		registry:       registry,
		idempotency:    idempotency,
		validator:      validator.New(),
		defaultCompany: defaultCompany,
	}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/events/{kind}", h.handleRecord)
	r.Get("/entries", h.handleEntries)
	r.Get("/entries/{id}", h.handleEntry)
	r.Post("/entries/{id}/reverse", h.handleReverse)
	r.Get("/balances/{account}", h.handleBalance)
	r.Get("/ledgers/{entityType}", h.handleSummaries)
	r.Get("/ledgers/{entityType}/{id}", h.handleLedger)
	r.Get("/accounts", h.handleAccounts)
	r.Post("/accounts", h.handleCreateAccount)
	r.Post("/accounts/setup", h.handleSetup)
	r.Get("/reports/trial-balance", h.handleTrialBalance)
	r.Get("/reports/pack", h.handleReportPack)
	r.Get("/integrity", h.handleVerify)
	r.Delete("/session", h.handleCloseSession)
}

func (h *Handler) company(r *http.Request) string {
	if company := internalShared.CompanyFromContext(r.Context()); company != "" {
		return company
	}
	return h.defaultCompany
}

func (h *Handler) service(w http.ResponseWriter, r *http.Request) (*Service, bool) {
	svc, err := h.registry.Open(r.Context(), h.company(r))
	if err != nil {
		h.respondError(w, err)
		return nil, false
	}
	return svc, true
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	req, ok := NewEventRequest(chi.URLParam(r, "kind"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown event kind")
		return
	}
	if err := httpx.DecodeJSON(r, req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if !h.valid(w, req) {
		return
	}
	evt, err := req.Event()
	if err != nil {
		httpx.FieldProblem(w, map[string]string{"date": err.Error()})
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), svc.Company(), key, idempotencyModule); err != nil {
			if errors.Is(err, internalShared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate", "request already processed")
				return
			}
			h.logger.Error("idempotency check", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	}
	result := svc.Dispatch(r.Context(), evt)
	if !result.Success {
		if key != "" && h.idempotency != nil {
			if err := h.idempotency.Delete(r.Context(), svc.Company(), key); err != nil {
				h.logger.Warn("idempotency rollback", slog.Any("error", err))
			}
		}
		httpx.JSON(w, http.StatusUnprocessableEntity, toResultView(result, h.chartIndex(r.Context(), svc)))
		return
	}
	httpx.JSON(w, http.StatusCreated, toResultView(result, h.chartIndex(r.Context(), svc)))
}

func (h *Handler) handleEntries(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := posting.EntryFilter{
		ReferenceNo: strings.TrimSpace(q.Get("reference")),
		Module:      journals.Module(q.Get("module")),
		Event:       journals.EventKind(strings.ToUpper(q.Get("event"))),
	}
	if typ := q.Get("entity_type"); typ != "" {
		ref := journals.EntityRef{Type: journals.EntityType(typ), ID: q.Get("entity_id"), Name: q.Get("entity_name")}
		if !ref.Type.Valid() {
			httpx.FieldProblem(w, map[string]string{"entity_type": "must be customer, supplier or worker"})
			return
		}
		if ref.ID == "" {
			ref.ID = strings.ToLower(strings.TrimSpace(ref.Name))
		}
		filter.Entity = &ref
	}
	var err error
	if filter.From, err = parseDate(q.Get("from")); err != nil {
		httpx.FieldProblem(w, map[string]string{"from": err.Error()})
		return
	}
	if filter.To, err = parseDate(q.Get("to")); err != nil {
		httpx.FieldProblem(w, map[string]string{"to": err.Error()})
		return
	}

	var list []journals.JournalEntry
	if filter == (posting.EntryFilter{}) {
		list = svc.Entries()
	} else {
		list, err = svc.ListEntries(r.Context(), filter)
		if err != nil {
			h.respondError(w, err)
			return
		}
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage > maxPageSize {
		perPage = maxPageSize
	}
	pagination := internalShared.NewPagination(page, perPage, len(list))
	start, end := pagination.Bounds()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries":    toEntryViews(list[start:end], h.chartIndex(r.Context(), svc)),
		"pagination": pagination,
	})
}

func (h *Handler) handleEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entryID(w, r)
	if !ok {
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	entry, err := svc.Entry(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryView(entry, h.chartIndex(r.Context(), svc)))
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entryID(w, r)
	if !ok {
		return
	}
	var req ReverseRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
			return
		}
	}
	if !h.valid(w, &req) {
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	result := svc.RecordReversal(r.Context(), id, req.Memo)
	if !result.Success {
		httpx.JSON(w, http.StatusUnprocessableEntity, toResultView(result, h.chartIndex(r.Context(), svc)))
		return
	}
	httpx.JSON(w, http.StatusCreated, toResultView(result, h.chartIndex(r.Context(), svc)))
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	bal, err := svc.GetAccountBalance(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBalanceView(bal.Account, bal.Balance))
}

func (h *Handler) handleSummaries(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseDate(r.URL.Query().Get("as_of"))
	if err != nil {
		httpx.FieldProblem(w, map[string]string{"as_of": err.Error()})
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	list, err := svc.EntitySummaries(r.Context(), journals.EntityType(chi.URLParam(r, "entityType")), asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"summaries": list})
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseDate(r.URL.Query().Get("as_of"))
	if err != nil {
		httpx.FieldProblem(w, map[string]string{"as_of": err.Error()})
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	ref := journals.EntityRef{
		Type: journals.EntityType(chi.URLParam(r, "entityType")),
		ID:   chi.URLParam(r, "id"),
		Name: r.URL.Query().Get("name"),
	}
	ledger, err := svc.EntityLedger(r.Context(), ref, asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}

func (h *Handler) handleAccounts(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	list, err := svc.Accounts(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": toAccountViews(list)})
}

// CreateAccountRequest is the body of POST /accounts.
type CreateAccountRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=200"`
	Type     string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY INCOME EXPENSE"`
	ParentID *int64 `json:"parent_id" validate:"omitempty,gt=0"`
}

func (h *Handler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if !h.valid(w, &req) {
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	acc, err := svc.Chart().CreateAccount(r.Context(), accounts.NewAccountInput{
		Code:     req.Code,
		Name:     req.Name,
		Type:     accounts.AccountType(req.Type),
		ParentID: req.ParentID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountView(acc))
}

func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	list, err := svc.Setup(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": toAccountViews(list)})
}

func (h *Handler) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	tb, err := svc.TrialBalance(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) handleReportPack(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	pack, err := svc.Reports(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pack)
}

// DriftView is the JSON form of an account whose cached balance drifted.
type DriftView struct {
	AccountID int64  `json:"account_id"`
	Cached    string `json:"cached"`
	Replayed  string `json:"replayed"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	drifts, err := svc.Verify(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	views := make([]DriftView, 0, len(drifts))
	for _, d := range drifts {
		views = append(views, DriftView{AccountID: d.AccountID, Cached: d.Cached.Balance.StringFixed(2), Replayed: d.Replayed.Balance.StringFixed(2)})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"consistent": len(views) == 0, "drifts": views})
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	h.registry.Close(h.company(r))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) entryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.FieldProblem(w, map[string]string{"id": "must be a positive integer"})
		return 0, false
	}
	return id, true
}

func (h *Handler) valid(w http.ResponseWriter, req any) bool {
	err := h.validator.Struct(req)
	if err == nil {
		return true
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		fields[fieldErr.Namespace()] = fieldErr.Tag()
	}
	httpx.FieldProblem(w, fields)
	return false
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrAccountNotFound), errors.Is(err, shared.ErrJournalNotFound), errors.Is(err, shared.ErrUnknownCompany):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err.Error()))
	case errors.Is(err, shared.ErrDuplicateCode):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrDuplicate, err.Error()))
	case errors.Is(err, shared.ErrValidation):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
	case errors.Is(err, shared.ErrConfiguration),
		errors.Is(err, shared.ErrUnbalanced),
		errors.Is(err, shared.ErrAccountInUse),
		errors.Is(err, shared.ErrAlreadyReversed):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnprocessable, err.Error()))
	case errors.Is(err, ErrServiceClosed):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnavailable, err.Error()))
	default:
		h.logger.Error("accounting request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, errors.New("must be YYYY-MM-DD")
	}
	return t, nil
}

// chartIndex indexes the chart for entry views. A failed lookup leaves the
// views with bare account ids.
func (h *Handler) chartIndex(ctx context.Context, svc *Service) accountIndex {
	list, err := svc.Accounts(ctx)
	if err != nil {
		h.logger.Warn("chart lookup for entry view", slog.Any("error", err))
		return nil
	}
	return newAccountIndex(list)
}

// Package handler содержит HTTP-обработчики API сервиса учёта АЗС.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/pumpstation-system/internal/middleware"
	"github.com/mmeshcher/pumpstation-system/internal/model"
	"github.com/mmeshcher/pumpstation-system/internal/reconcile"
	"github.com/mmeshcher/pumpstation-system/internal/repository"
	"github.com/mmeshcher/pumpstation-system/internal/service"
	"github.com/mmeshcher/pumpstation-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string, role model.Role) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)

	CreateMachine(ctx context.Context, actor model.User, m *model.Machine) (int64, error)
	ListMachines(ctx context.Context) ([]model.Machine, error)

	CreateTesting(ctx context.Context, actor model.User, t *model.TestingRecord) (int64, error)
	ListTestings(ctx context.Context, f model.TestingFilter) ([]model.TestingRecord, error)
	TestingVolumeForDate(ctx context.Context, machineID int64, date time.Time) (decimal.Decimal, error)

	CreateReading(ctx context.Context, actor model.User, in service.ReadingInput) (*model.ShiftReading, error)
	UpdateReading(ctx context.Context, actor model.User, id uuid.UUID, in service.ReadingInput) (*model.ShiftReading, error)
	ApproveReading(ctx context.Context, actor model.User, id uuid.UUID) error
	DeleteReading(ctx context.Context, actor model.User, id uuid.UUID) error
	ListReadings(ctx context.Context, f model.ReadingFilter) ([]model.ShiftReading, error)

	AddLedgerEntry(ctx context.Context, actor model.User, purchaserID int64, in service.LedgerInput) (*model.LedgerEntry, error)
	UpdateLedgerEntry(ctx context.Context, actor model.User, id uuid.UUID, in service.LedgerInput) (*model.LedgerEntry, error)
	DeleteLedgerEntry(ctx context.Context, actor model.User, id uuid.UUID) error
	ListLedgerEntries(ctx context.Context, f model.LedgerFilter) ([]model.LedgerEntry, error)
	GetLedgerSummary(ctx context.Context, purchaserID int64) (*model.LedgerSummary, error)

	ListAuditLogs(ctx context.Context, actor model.User, limit int) ([]model.AuditLog, error)
}

// Handler реализует HTTP-обработчики API сервиса учёта АЗС.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// writeError переводит ошибки бизнес-логики в HTTP-статусы.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var ve *reconcile.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, service.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrForbidden), errors.Is(err, repository.ErrReadingApproved):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, repository.ErrReadingNotFound),
		errors.Is(err, repository.ErrEntryNotFound),
		errors.Is(err, repository.ErrPurchaserNotFound),
		errors.Is(err, repository.ErrMachineNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, repository.ErrUserExists), errors.Is(err, repository.ErrMachineExists):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("internal error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (model.User, bool) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return model.User{}, false
	}
	return actor, true
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return uuid.Nil, false
	}
	return id, true
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	role := model.Role(req.Role)
	if req.Role == "" {
		role = model.RoleSalesman
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, role)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		if errors.Is(err, service.ErrValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID, role)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || err.Error() == "invalid credentials" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, u.ID, u.Role)
	w.WriteHeader(http.StatusOK)
}

type machineRequest struct {
	Name           string                    `json:"name"`
	Fuel           string                    `json:"fuel"`
	Rate           validation.LenientDecimal `json:"rate"`
	CurrentReading validation.LenientDecimal `json:"currentReading"`
}

type machineResponse struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Fuel           string  `json:"fuel"`
	Rate           float64 `json:"rate"`
	CurrentReading float64 `json:"currentReading"`
}

// CreateMachine создаёт новую колонку.
func (h *Handler) CreateMachine(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req machineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	m := &model.Machine{
		Name:           req.Name,
		Fuel:           req.Fuel,
		Rate:           req.Rate.Decimal,
		CurrentReading: req.CurrentReading.Decimal,
	}

	id, err := h.service.CreateMachine(r.Context(), actor, m)
	if err != nil {
		h.writeError(w, err)
		return
	}
	m.ID = id

	h.writeJSON(w, http.StatusCreated, machineResponse{
		ID:             m.ID,
		Name:           m.Name,
		Fuel:           m.Fuel,
		Rate:           m.Rate.InexactFloat64(),
		CurrentReading: m.CurrentReading.InexactFloat64(),
	})
}

// ListMachines возвращает список колонок.
func (h *Handler) ListMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := h.service.ListMachines(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]machineResponse, 0, len(machines))
	for _, m := range machines {
		resp = append(resp, machineResponse{
			ID:             m.ID,
			Name:           m.Name,
			Fuel:           m.Fuel,
			Rate:           m.Rate.InexactFloat64(),
			CurrentReading: m.CurrentReading.InexactFloat64(),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type testingRequest struct {
	MachineID int64                     `json:"machine"`
	Date      string                    `json:"date"`
	Volume    validation.LenientDecimal `json:"volume"`
}

type testingResponse struct {
	ID        int64   `json:"id"`
	MachineID int64   `json:"machine"`
	Date      string  `json:"date"`
	Volume    float64 `json:"volume"`
}

// CreateTesting сохраняет запись о проверочном сливе.
func (h *Handler) CreateTesting(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req testingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	date, err := validation.ParseDate(req.Date)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	t := &model.TestingRecord{
		MachineID: req.MachineID,
		Date:      date,
		Volume:    req.Volume.Decimal,
	}

	id, err := h.service.CreateTesting(r.Context(), actor, t)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, testingResponse{
		ID:        id,
		MachineID: t.MachineID,
		Date:      t.Date.Format(validation.DateLayout),
		Volume:    t.Volume.InexactFloat64(),
	})
}

// ListTestings возвращает записи о проверках.
func (h *Handler) ListTestings(w http.ResponseWriter, r *http.Request) {
	f := model.TestingFilter{}
	if v := r.URL.Query().Get("machine"); v != "" {
		f.MachineID, _ = strconv.ParseInt(v, 10, 64)
	}
	if d, err := validation.ParseDate(r.URL.Query().Get("startDate")); err == nil {
		f.DateFrom = d
	}
	if d, err := validation.ParseDate(r.URL.Query().Get("endDate")); err == nil {
		f.DateTo = d
	}

	testings, err := h.service.ListTestings(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]testingResponse, 0, len(testings))
	for _, t := range testings {
		resp = append(resp, testingResponse{
			ID:        t.ID,
			MachineID: t.MachineID,
			Date:      t.Date.Format(validation.DateLayout),
			Volume:    t.Volume.InexactFloat64(),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// TestingVolumeForDate возвращает суммарный объём проверок колонки за дату.
func (h *Handler) TestingVolumeForDate(w http.ResponseWriter, r *http.Request) {
	machineID, err := strconv.ParseInt(r.URL.Query().Get("machine"), 10, 64)
	if err != nil {
		http.Error(w, "invalid machine", http.StatusBadRequest)
		return
	}

	date, err := validation.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	volume, err := h.service.TestingVolumeForDate(r.Context(), machineID, date)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]float64{"volume": volume.InexactFloat64()})
}

type expenseLineRequest struct {
	Amount  validation.LenientDecimal `json:"amount"`
	Remarks string                    `json:"remarks"`
}

type readingRequest struct {
	Date          string                    `json:"date"`
	MachineID     int64                     `json:"machine"`
	Shift         string                    `json:"shift"`
	StartReading  validation.LenientDecimal `json:"startReading"`
	EndReading    validation.LenientDecimal `json:"endReading"`
	Rate          validation.LenientDecimal `json:"rate"`
	IsTestingDone bool                      `json:"isTestingDone"`
	Cash          validation.LenientDecimal `json:"cash"`
	Card          validation.LenientDecimal `json:"card"`
	UPI           validation.LenientDecimal `json:"upi"`
	Credit        validation.LenientDecimal `json:"credit"`
	Expenses      []expenseLineRequest      `json:"expenses"`
}

func (req readingRequest) toInput() (service.ReadingInput, error) {
	date, err := validation.ParseDate(req.Date)
	if err != nil {
		return service.ReadingInput{}, err
	}

	expenses := make([]model.ExpenseLine, 0, len(req.Expenses))
	for _, e := range req.Expenses {
		expenses = append(expenses, model.ExpenseLine{
			Amount:  e.Amount.Decimal,
			Remarks: e.Remarks,
		})
	}

	return service.ReadingInput{
		Date:          date,
		MachineID:     req.MachineID,
		Shift:         req.Shift,
		StartReading:  req.StartReading.Decimal,
		EndReading:    req.EndReading.Decimal,
		Rate:          req.Rate.Decimal,
		IsTestingDone: req.IsTestingDone,
		Cash:          req.Cash.Decimal,
		Card:          req.Card.Decimal,
		UPI:           req.UPI.Decimal,
		Credit:        req.Credit.Decimal,
		Expenses:      expenses,
	}, nil
}

type expenseLineResponse struct {
	Amount  float64 `json:"amount"`
	Remarks string  `json:"remarks"`
}

type readingResponse struct {
	ID            string                `json:"id"`
	Date          string                `json:"date"`
	MachineID     int64                 `json:"machine"`
	Shift         string                `json:"shift"`
	StartReading  float64               `json:"startReading"`
	EndReading    float64               `json:"endReading"`
	Rate          float64               `json:"rate"`
	IsTestingDone bool                  `json:"isTestingDone"`
	TestingVolume float64               `json:"testingVolume"`
	Cash          float64               `json:"cash"`
	Card          float64               `json:"card"`
	UPI           float64               `json:"upi"`
	Credit        float64               `json:"credit"`
	Expenses      []expenseLineResponse `json:"expenses"`
	SaleVolume    float64               `json:"saleVolume"`
	ExpenseTotal  float64               `json:"expenseTotal"`
	NetAmount     float64               `json:"netAmount"`
	ShortExcess   float64               `json:"shortExcess"`
	Status        string                `json:"status"`
	CreatedBy     int64                 `json:"createdby"`
	CreatedAt     string                `json:"createdAt"`
}

func toReadingResponse(sr *model.ShiftReading) readingResponse {
	expenses := make([]expenseLineResponse, 0, len(sr.Expenses))
	for _, e := range sr.Expenses {
		expenses = append(expenses, expenseLineResponse{
			Amount:  e.Amount.InexactFloat64(),
			Remarks: e.Remarks,
		})
	}

	return readingResponse{
		ID:            sr.ID.String(),
		Date:          sr.Date.Format(validation.DateLayout),
		MachineID:     sr.MachineID,
		Shift:         sr.Shift,
		StartReading:  sr.StartReading.InexactFloat64(),
		EndReading:    sr.EndReading.InexactFloat64(),
		Rate:          sr.Rate.InexactFloat64(),
		IsTestingDone: sr.IsTestingDone,
		TestingVolume: sr.TestingVolume.InexactFloat64(),
		Cash:          sr.Cash.InexactFloat64(),
		Card:          sr.Card.InexactFloat64(),
		UPI:           sr.UPI.InexactFloat64(),
		Credit:        sr.Credit.InexactFloat64(),
		Expenses:      expenses,
		SaleVolume:    sr.SaleVolume.InexactFloat64(),
		ExpenseTotal:  sr.ExpenseTotal.InexactFloat64(),
		NetAmount:     sr.NetAmount.InexactFloat64(),
		ShortExcess:   sr.ShortExcess.InexactFloat64(),
		Status:        string(sr.Status),
		CreatedBy:     sr.CreatedBy,
		CreatedAt:     sr.CreatedAt.Format(time.RFC3339),
	}
}

// CreateReading создаёт запись показаний смены.
func (h *Handler) CreateReading(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req readingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in, err := req.toInput()
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	sr, err := h.service.CreateReading(r.Context(), actor, in)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toReadingResponse(sr))
}

// UpdateReading перезаписывает запись показаний смены.
func (h *Handler) UpdateReading(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req readingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in, err := req.toInput()
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	sr, err := h.service.UpdateReading(r.Context(), actor, id, in)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toReadingResponse(sr))
}

// ApproveReading утверждает запись показаний смены.
func (h *Handler) ApproveReading(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.ApproveReading(r.Context(), actor, id); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteReading удаляет запись показаний смены.
func (h *Handler) DeleteReading(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteReading(r.Context(), actor, id); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListReadings возвращает записи показаний смен с фильтрацией.
func (h *Handler) ListReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := model.ReadingFilter{
		Shift:  q.Get("shift"),
		Status: model.ReadingStatus(q.Get("status")),
	}
	if v := q.Get("machine"); v != "" {
		f.MachineID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("createdby"); v != "" {
		f.CreatedBy, _ = strconv.ParseInt(v, 10, 64)
	}
	if d, err := validation.ParseDate(q.Get("startDate")); err == nil {
		f.DateFrom = d
	}
	if d, err := validation.ParseDate(q.Get("endDate")); err == nil {
		f.DateTo = d
	}

	readings, err := h.service.ListReadings(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]readingResponse, 0, len(readings))
	for i := range readings {
		resp = append(resp, toReadingResponse(&readings[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type ledgerRequest struct {
	PurchaserID int64                     `json:"user"`
	Type        string                    `json:"type"`
	Amount      validation.LenientDecimal `json:"amount"`
	Date        string                    `json:"date"`
	Notes       string                    `json:"notes"`
}

type ledgerResponse struct {
	ID           string  `json:"id"`
	PurchaserID  int64   `json:"user"`
	Type         string  `json:"type"`
	Amount       float64 `json:"amount"`
	Date         string  `json:"date"`
	Notes        string  `json:"notes"`
	BalanceAfter float64 `json:"balanceAfter"`
	CreatedAt    string  `json:"createdAt"`
}

func toLedgerResponse(e *model.LedgerEntry) ledgerResponse {
	return ledgerResponse{
		ID:           e.ID.String(),
		PurchaserID:  e.PurchaserID,
		Type:         string(e.Type),
		Amount:       e.Amount.InexactFloat64(),
		Date:         e.Date.Format(validation.DateLayout),
		Notes:        e.Notes,
		BalanceAfter: e.BalanceAfter.InexactFloat64(),
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}

func (req ledgerRequest) toInput() (service.LedgerInput, error) {
	date, err := validation.ParseDate(req.Date)
	if err != nil {
		return service.LedgerInput{}, err
	}

	return service.LedgerInput{
		Type:   model.EntryType(req.Type),
		Amount: req.Amount.Decimal,
		Date:   date,
		Notes:  req.Notes,
	}, nil
}

// AddLedgerEntry добавляет запись кредитной книги.
func (h *Handler) AddLedgerEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req ledgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in, err := req.toInput()
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	e, err := h.service.AddLedgerEntry(r.Context(), actor, req.PurchaserID, in)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toLedgerResponse(e))
}

// UpdateLedgerEntry изменяет запись кредитной книги.
func (h *Handler) UpdateLedgerEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req ledgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in, err := req.toInput()
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	e, err := h.service.UpdateLedgerEntry(r.Context(), actor, id, in)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toLedgerResponse(e))
}

// DeleteLedgerEntry удаляет запись кредитной книги.
func (h *Handler) DeleteLedgerEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteLedgerEntry(r.Context(), actor, id); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListLedgerEntries возвращает записи кредитной книги с фильтрацией.
func (h *Handler) ListLedgerEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := model.LedgerFilter{
		Type: model.EntryType(q.Get("type")),
	}
	if v := q.Get("user"); v != "" {
		f.PurchaserID, _ = strconv.ParseInt(v, 10, 64)
	}
	if d, err := validation.ParseDate(q.Get("startDate")); err == nil {
		f.DateFrom = d
	}
	if d, err := validation.ParseDate(q.Get("endDate")); err == nil {
		f.DateTo = d
	}

	entries, err := h.service.ListLedgerEntries(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]ledgerResponse, 0, len(entries))
	for i := range entries {
		resp = append(resp, toLedgerResponse(&entries[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetLedgerSummary возвращает сводку кредитной книги покупателя.
func (h *Handler) GetLedgerSummary(w http.ResponseWriter, r *http.Request) {
	purchaserID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	s, err := h.service.GetLedgerSummary(r.Context(), purchaserID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]float64{
		"totalCredit": s.TotalCredit.InexactFloat64(),
		"totalPaid":   s.TotalPaid.InexactFloat64(),
		"balance":     s.Balance.InexactFloat64(),
	})
}

type auditLogResponse struct {
	ID        string `json:"id"`
	ActorID   int64  `json:"actor"`
	Action    string `json:"action"`
	Entity    string `json:"entity"`
	EntityID  string `json:"entityId"`
	CreatedAt string `json:"createdAt"`
}

// ListAuditLogs возвращает журнал действий.
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	logs, err := h.service.ListAuditLogs(r.Context(), actor, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]auditLogResponse, 0, len(logs))
	for _, l := range logs {
		resp = append(resp, auditLogResponse{
			ID:        l.ID.String(),
			ActorID:   l.ActorID,
			Action:    l.Action,
			Entity:    l.Entity,
			EntityID:  l.EntityID,
			CreatedAt: l.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

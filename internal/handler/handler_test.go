package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/pumpstation-system/internal/middleware"
	"github.com/mmeshcher/pumpstation-system/internal/model"
	"github.com/mmeshcher/pumpstation-system/internal/repository"
	"github.com/mmeshcher/pumpstation-system/internal/service"
	"github.com/mmeshcher/pumpstation-system/internal/validation"
)

type stubService struct {
	registerUserID int64
	registerErr    error

	authUser *model.User
	authErr  error

	machineID  int64
	machineErr error

	machinesResp []model.Machine
	machinesErr  error

	testingID  int64
	testingErr error

	testingsResp []model.TestingRecord
	testingsErr  error

	testingVolume decimal.Decimal
	testingVolErr error

	readingResp *model.ShiftReading
	readingErr  error

	readingsResp []model.ShiftReading
	readingsErr  error

	approveErr error
	deleteErr  error

	entryResp *model.LedgerEntry
	entryErr  error

	entriesResp []model.LedgerEntry
	entriesErr  error

	entryDeleteErr error

	summaryResp *model.LedgerSummary
	summaryErr  error

	auditResp []model.AuditLog
	auditErr  error
}

func (s *stubService) RegisterUser(ctx context.Context, login, password string, role model.Role) (int64, error) {
	return s.registerUserID, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) CreateMachine(ctx context.Context, actor model.User, m *model.Machine) (int64, error) {
	return s.machineID, s.machineErr
}

func (s *stubService) ListMachines(ctx context.Context) ([]model.Machine, error) {
	return s.machinesResp, s.machinesErr
}

func (s *stubService) CreateTesting(ctx context.Context, actor model.User, t *model.TestingRecord) (int64, error) {
	return s.testingID, s.testingErr
}

func (s *stubService) ListTestings(ctx context.Context, f model.TestingFilter) ([]model.TestingRecord, error) {
	return s.testingsResp, s.testingsErr
}

func (s *stubService) TestingVolumeForDate(ctx context.Context, machineID int64, date time.Time) (decimal.Decimal, error) {
	return s.testingVolume, s.testingVolErr
}

func (s *stubService) CreateReading(ctx context.Context, actor model.User, in service.ReadingInput) (*model.ShiftReading, error) {
	return s.readingResp, s.readingErr
}

func (s *stubService) UpdateReading(ctx context.Context, actor model.User, id uuid.UUID, in service.ReadingInput) (*model.ShiftReading, error) {
	return s.readingResp, s.readingErr
}

func (s *stubService) ApproveReading(ctx context.Context, actor model.User, id uuid.UUID) error {
	return s.approveErr
}

func (s *stubService) DeleteReading(ctx context.Context, actor model.User, id uuid.UUID) error {
	return s.deleteErr
}

func (s *stubService) ListReadings(ctx context.Context, f model.ReadingFilter) ([]model.ShiftReading, error) {
	return s.readingsResp, s.readingsErr
}

func (s *stubService) AddLedgerEntry(ctx context.Context, actor model.User, purchaserID int64, in service.LedgerInput) (*model.LedgerEntry, error) {
	return s.entryResp, s.entryErr
}

func (s *stubService) UpdateLedgerEntry(ctx context.Context, actor model.User, id uuid.UUID, in service.LedgerInput) (*model.LedgerEntry, error) {
	return s.entryResp, s.entryErr
}

func (s *stubService) DeleteLedgerEntry(ctx context.Context, actor model.User, id uuid.UUID) error {
	return s.entryDeleteErr
}

func (s *stubService) ListLedgerEntries(ctx context.Context, f model.LedgerFilter) ([]model.LedgerEntry, error) {
	return s.entriesResp, s.entriesErr
}

func (s *stubService) GetLedgerSummary(ctx context.Context, purchaserID int64) (*model.LedgerSummary, error) {
	return s.summaryResp, s.summaryErr
}

func (s *stubService) ListAuditLogs(ctx context.Context, actor model.User, limit int) ([]model.AuditLog, error) {
	return s.auditResp, s.auditErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func authedRequest(t *testing.T, h *Handler, req *http.Request, userID int64, role model.Role) *http.Request {
	t.Helper()

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, userID, role)
	req.AddCookie(rec.Result().Cookies()[0])

	return req
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerUserID: 42,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "user",
		Password: "pass",
		Role:     "manager",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/user/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatal("expected auth cookie to be set")
	}
}

func TestRegister_Conflict(t *testing.T) {
	svc := &stubService{
		registerErr: repository.ErrUserExists,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "user",
		Password: "pass",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/user/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestLogin_UnauthorizedOnError(t *testing.T) {
	svc := &stubService{
		authErr: repository.ErrUserNotFound,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "user",
		Password: "pass",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/user/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestCreateReading_DerivedFieldsInResponse(t *testing.T) {
	now := time.Now().UTC()
	svc := &stubService{
		readingResp: &model.ShiftReading{
			ID:           uuid.New(),
			Date:         time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			MachineID:    3,
			Shift:        "morning",
			StartReading: decimal.NewFromInt(1000),
			EndReading:   decimal.NewFromInt(1050),
			Rate:         decimal.NewFromInt(100),
			SaleVolume:   decimal.NewFromInt(50),
			NetAmount:    decimal.NewFromInt(5000),
			ShortExcess:  decimal.NewFromInt(-250),
			Status:       model.ReadingStatusPending,
			CreatedBy:    7,
			CreatedAt:    now,
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(readingRequest{
		Date:      "2025-06-01",
		MachineID: 3,
		Shift:     "morning",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/daily-collections", bytes.NewReader(body))
	req = authedRequest(t, h, req, 7, model.RoleSalesman)

	rec := httptest.NewRecorder()
	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.CreateReading))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp readingResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.NetAmount != 5000 {
		t.Fatalf("netAmount = %v, want 5000", resp.NetAmount)
	}
	if resp.ShortExcess != -250 {
		t.Fatalf("shortExcess = %v, want -250", resp.ShortExcess)
	}
	if resp.Status != string(model.ReadingStatusPending) {
		t.Fatalf("status = %q, want %q", resp.Status, model.ReadingStatusPending)
	}
}

func TestCreateReading_BadDate(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(readingRequest{
		Date:      "01/06/2025",
		MachineID: 3,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/daily-collections", bytes.NewReader(body))
	req = authedRequest(t, h, req, 7, model.RoleSalesman)

	rec := httptest.NewRecorder()
	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.CreateReading))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestCreateReading_Unauthorized(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/daily-collections", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.CreateReading))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestUpdateReading_ForbiddenOnApproved(t *testing.T) {
	svc := &stubService{
		readingErr: service.ErrForbidden,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(readingRequest{Date: "2025-06-01"})

	r := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPut, "/api/daily-collections/"+uuid.NewString(), bytes.NewReader(body))
	req = authedRequest(t, h, req, 7, model.RoleSalesman)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}
}

func TestUpdateReading_MalformedID(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	r := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPut, "/api/daily-collections/not-a-uuid", bytes.NewReader([]byte("{}")))
	req = authedRequest(t, h, req, 1, model.RoleAdmin)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestAddLedgerEntry_ValidationError(t *testing.T) {
	svc := &stubService{
		entryErr: service.ErrValidation,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(ledgerRequest{
		PurchaserID: 5,
		Type:        "credit",
		Amount:      validation.LenientDecimal{},
		Date:        "2025-06-01",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/credits", bytes.NewReader(body))
	req = authedRequest(t, h, req, 1, model.RoleManager)

	rec := httptest.NewRecorder()
	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.AddLedgerEntry))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestAddLedgerEntry_PurchaserNotFound(t *testing.T) {
	svc := &stubService{
		entryErr: repository.ErrPurchaserNotFound,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(ledgerRequest{
		PurchaserID: 99,
		Type:        "credit",
		Date:        "2025-06-01",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/credits", bytes.NewReader(body))
	req = authedRequest(t, h, req, 1, model.RoleManager)

	rec := httptest.NewRecorder()
	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.AddLedgerEntry))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestGetLedgerSummary_JSONResponse(t *testing.T) {
	svc := &stubService{
		summaryResp: &model.LedgerSummary{
			TotalCredit: decimal.NewFromInt(600),
			TotalPaid:   decimal.NewFromInt(200),
			Balance:     decimal.NewFromInt(400),
		},
	}
	h := newTestHandler(t, svc)

	r := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/credits/summary/5", nil)
	req = authedRequest(t, h, req, 1, model.RoleManager)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp map[string]float64
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["balance"] != 400 {
		t.Fatalf("balance = %v, want 400", resp["balance"])
	}
}

func TestListAuditLogs_Forbidden(t *testing.T) {
	svc := &stubService{
		auditErr: service.ErrForbidden,
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/audit-logs", nil)
	req = authedRequest(t, h, req, 2, model.RoleManager)

	rec := httptest.NewRecorder()
	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.ListAuditLogs))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}
}

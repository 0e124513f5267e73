// Package service реализует бизнес-логику сервиса учёта АЗС.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pumpstation-system/internal/alert"
	"github.com/mmeshcher/pumpstation-system/internal/model"
	"github.com/mmeshcher/pumpstation-system/internal/reconcile"
	"github.com/mmeshcher/pumpstation-system/internal/repository"
)

// ErrValidation возвращается при недопустимых входных данных мутации.
var (
	ErrValidation = errors.New("validation error")
	// ErrForbidden возвращается, когда роль актора не допускает операцию.
	ErrForbidden = errors.New("operation not allowed for role")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)

	CreateMachine(ctx context.Context, m *model.Machine) (int64, error)
	GetMachineByID(ctx context.Context, id int64) (*model.Machine, error)
	ListMachines(ctx context.Context) ([]model.Machine, error)

	CreateTesting(ctx context.Context, t *model.TestingRecord) (int64, error)
	ListTestings(ctx context.Context, f model.TestingFilter) ([]model.TestingRecord, error)
	TestingVolume(ctx context.Context, machineID int64, date time.Time) (decimal.Decimal, error)

	CreateReading(ctx context.Context, sr *model.ShiftReading) error
	GetReadingByID(ctx context.Context, id uuid.UUID) (*model.ShiftReading, error)
	UpdateReading(ctx context.Context, sr *model.ShiftReading) error
	DeleteReading(ctx context.Context, id uuid.UUID) error
	ApproveReading(ctx context.Context, id uuid.UUID) error
	ListReadings(ctx context.Context, f model.ReadingFilter) ([]model.ShiftReading, error)
	GetReadingsForAlert(ctx context.Context, threshold decimal.Decimal, limit int) ([]repository.ReadingForAlert, error)
	MarkReadingAlerted(ctx context.Context, id uuid.UUID) error

	AddLedgerEntry(ctx context.Context, e *model.LedgerEntry) error
	UpdateLedgerEntry(ctx context.Context, e *model.LedgerEntry) error
	DeleteLedgerEntry(ctx context.Context, id uuid.UUID) error
	GetLedgerEntryByID(ctx context.Context, id uuid.UUID) (*model.LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, f model.LedgerFilter) ([]model.LedgerEntry, error)
	GetLedgerSummary(ctx context.Context, purchaserID int64) (*model.LedgerSummary, error)

	CreateAuditLog(ctx context.Context, l *model.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]model.AuditLog, error)
}

// Service содержит бизнес-логику сервиса учёта АЗС.
type Service struct {
	repo           Repository
	alertClient    *alert.Client
	alertThreshold decimal.Decimal
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом оповещений.
func NewService(repo Repository, alertClient *alert.Client, alertThreshold decimal.Decimal) *Service {
	return &Service{
		repo:           repo,
		alertClient:    alertClient,
		alertThreshold: alertThreshold,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя с указанной ролью.
func (s *Service) RegisterUser(ctx context.Context, login, password string, role model.Role) (int64, error) {
	if !role.Valid() {
		return 0, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed, role)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его учётную запись.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return nil, errors.New("invalid credentials")
	}

	return u, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// CreateMachine создаёт новую колонку.
func (s *Service) CreateMachine(ctx context.Context, actor model.User, m *model.Machine) (int64, error) {
	if actor.Role != model.RoleAdmin && actor.Role != model.RoleManager {
		return 0, ErrForbidden
	}
	if m.Name == "" {
		return 0, fmt.Errorf("%w: machine name is required", ErrValidation)
	}
	if m.Rate.IsNegative() || m.CurrentReading.IsNegative() {
		return 0, fmt.Errorf("%w: rate and current reading must not be negative", ErrValidation)
	}

	id, err := s.repo.CreateMachine(ctx, m)
	if err != nil {
		return 0, err
	}

	s.audit(ctx, actor.ID, "create", "machine", fmt.Sprintf("%d", id))
	return id, nil
}

// ListMachines возвращает список колонок.
func (s *Service) ListMachines(ctx context.Context) ([]model.Machine, error) {
	return s.repo.ListMachines(ctx)
}

// CreateTesting сохраняет запись о проверочном сливе топлива.
func (s *Service) CreateTesting(ctx context.Context, actor model.User, t *model.TestingRecord) (int64, error) {
	if actor.Role == model.RolePurchaser {
		return 0, ErrForbidden
	}
	if t.Volume.IsNegative() {
		return 0, fmt.Errorf("%w: testing volume must not be negative", ErrValidation)
	}

	id, err := s.repo.CreateTesting(ctx, t)
	if err != nil {
		return 0, err
	}

	s.audit(ctx, actor.ID, "create", "testing", fmt.Sprintf("%d", id))
	return id, nil
}

// ListTestings возвращает записи о проверках.
func (s *Service) ListTestings(ctx context.Context, f model.TestingFilter) ([]model.TestingRecord, error) {
	return s.repo.ListTestings(ctx, f)
}

// TestingVolumeForDate возвращает суммарный объём проверок колонки за дату.
func (s *Service) TestingVolumeForDate(ctx context.Context, machineID int64, date time.Time) (decimal.Decimal, error) {
	return s.repo.TestingVolume(ctx, machineID, date)
}

// ReadingInput содержит исходные поля записи показаний смены.
type ReadingInput struct {
	Date          time.Time
	MachineID     int64
	Shift         string
	StartReading  decimal.Decimal
	EndReading    decimal.Decimal
	Rate          decimal.Decimal
	IsTestingDone bool
	Cash          decimal.Decimal
	Card          decimal.Decimal
	UPI           decimal.Decimal
	Credit        decimal.Decimal
	Expenses      []model.ExpenseLine
}

// compute разрешает объём проверок и выполняет полный расчёт сверки.
// Частичного пересчёта нет: любое изменение входов пересчитывает всё.
func (s *Service) compute(ctx context.Context, in ReadingInput) (decimal.Decimal, reconcile.Result, error) {
	testingVolume := decimal.Zero
	if in.IsTestingDone {
		v, err := s.repo.TestingVolume(ctx, in.MachineID, in.Date)
		if err != nil {
			return decimal.Zero, reconcile.Result{}, err
		}
		testingVolume = v
	}

	res, err := reconcile.Compute(reconcile.Input{
		StartReading:  in.StartReading,
		EndReading:    in.EndReading,
		Rate:          in.Rate,
		IsTestingDone: in.IsTestingDone,
		TestingVolume: testingVolume,
		Cash:          in.Cash,
		Card:          in.Card,
		UPI:           in.UPI,
		Credit:        in.Credit,
		Expenses:      in.Expenses,
	})
	if err != nil {
		return decimal.Zero, reconcile.Result{}, err
	}

	return testingVolume, res, nil
}

// CreateReading создаёт запись показаний смены со статусом pending
// и заполненными расчётными полями.
func (s *Service) CreateReading(ctx context.Context, actor model.User, in ReadingInput) (*model.ShiftReading, error) {
	if actor.Role == model.RolePurchaser {
		return nil, ErrForbidden
	}
	if in.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrValidation)
	}

	if _, err := s.repo.GetMachineByID(ctx, in.MachineID); err != nil {
		return nil, err
	}

	testingVolume, res, err := s.compute(ctx, in)
	if err != nil {
		return nil, err
	}

	sr := &model.ShiftReading{
		ID:            uuid.New(),
		Date:          in.Date,
		MachineID:     in.MachineID,
		Shift:         in.Shift,
		StartReading:  in.StartReading,
		EndReading:    in.EndReading,
		Rate:          in.Rate,
		IsTestingDone: in.IsTestingDone,
		TestingVolume: testingVolume,
		Cash:          in.Cash,
		Card:          in.Card,
		UPI:           in.UPI,
		Credit:        in.Credit,
		Expenses:      in.Expenses,
		SaleVolume:    res.SaleVolume,
		ExpenseTotal:  res.ExpenseTotal,
		NetAmount:     res.NetAmount,
		ShortExcess:   res.ShortExcess,
		Status:        model.ReadingStatusPending,
		CreatedBy:     actor.ID,
	}

	if err := s.repo.CreateReading(ctx, sr); err != nil {
		return nil, err
	}

	s.audit(ctx, actor.ID, "create", "shift_reading", sr.ID.String())
	return sr, nil
}

// canMutateReading проверяет право актора изменять или удалять запись.
// Утверждённые записи доступны только администратору; ожидающие — их
// создателю, менеджеру и администратору.
func canMutateReading(actor model.User, sr *model.ShiftReading) bool {
	if actor.Role == model.RoleAdmin {
		return true
	}
	if sr.Status == model.ReadingStatusApproved {
		return false
	}
	return actor.Role == model.RoleManager || sr.CreatedBy == actor.ID
}

// UpdateReading перезаписывает входные поля записи и пересчитывает сверку.
func (s *Service) UpdateReading(ctx context.Context, actor model.User, id uuid.UUID, in ReadingInput) (*model.ShiftReading, error) {
	sr, err := s.repo.GetReadingByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canMutateReading(actor, sr) {
		return nil, ErrForbidden
	}

	if in.MachineID != sr.MachineID {
		if _, err := s.repo.GetMachineByID(ctx, in.MachineID); err != nil {
			return nil, err
		}
	}

	testingVolume, res, err := s.compute(ctx, in)
	if err != nil {
		return nil, err
	}

	sr.Date = in.Date
	sr.MachineID = in.MachineID
	sr.Shift = in.Shift
	sr.StartReading = in.StartReading
	sr.EndReading = in.EndReading
	sr.Rate = in.Rate
	sr.IsTestingDone = in.IsTestingDone
	sr.TestingVolume = testingVolume
	sr.Cash = in.Cash
	sr.Card = in.Card
	sr.UPI = in.UPI
	sr.Credit = in.Credit
	sr.Expenses = in.Expenses
	sr.SaleVolume = res.SaleVolume
	sr.ExpenseTotal = res.ExpenseTotal
	sr.NetAmount = res.NetAmount
	sr.ShortExcess = res.ShortExcess

	if err := s.repo.UpdateReading(ctx, sr); err != nil {
		return nil, err
	}

	s.audit(ctx, actor.ID, "update", "shift_reading", sr.ID.String())
	return sr, nil
}

// ApproveReading переводит запись в статус approved. Переход одностороний.
func (s *Service) ApproveReading(ctx context.Context, actor model.User, id uuid.UUID) error {
	if actor.Role != model.RoleAdmin && actor.Role != model.RoleManager {
		return ErrForbidden
	}

	if err := s.repo.ApproveReading(ctx, id); err != nil {
		return err
	}

	s.audit(ctx, actor.ID, "approve", "shift_reading", id.String())
	return nil
}

// DeleteReading удаляет запись показаний с учётом ролевой политики.
func (s *Service) DeleteReading(ctx context.Context, actor model.User, id uuid.UUID) error {
	sr, err := s.repo.GetReadingByID(ctx, id)
	if err != nil {
		return err
	}

	if !canMutateReading(actor, sr) {
		return ErrForbidden
	}

	if err := s.repo.DeleteReading(ctx, id); err != nil {
		return err
	}

	s.audit(ctx, actor.ID, "delete", "shift_reading", id.String())
	return nil
}

// ListReadings возвращает записи показаний смен по фильтру.
func (s *Service) ListReadings(ctx context.Context, f model.ReadingFilter) ([]model.ShiftReading, error) {
	return s.repo.ListReadings(ctx, f)
}

// LedgerInput содержит поля записи кредитной книги.
type LedgerInput struct {
	Type   model.EntryType
	Amount decimal.Decimal
	Date   time.Time
	Notes  string
}

func validateLedgerInput(in LedgerInput) error {
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown entry type %q", ErrValidation, in.Type)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	return nil
}

// AddLedgerEntry добавляет запись кредитной книги покупателя и пересчитывает
// балансы всех его записей.
func (s *Service) AddLedgerEntry(ctx context.Context, actor model.User, purchaserID int64, in LedgerInput) (*model.LedgerEntry, error) {
	if actor.Role == model.RoleSalesman || actor.Role == model.RolePurchaser {
		return nil, ErrForbidden
	}
	if err := validateLedgerInput(in); err != nil {
		return nil, err
	}

	purchaser, err := s.repo.GetUserByID(ctx, purchaserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, repository.ErrPurchaserNotFound
		}
		return nil, err
	}
	if purchaser.Role != model.RolePurchaser {
		return nil, repository.ErrPurchaserNotFound
	}

	e := &model.LedgerEntry{
		ID:          uuid.New(),
		PurchaserID: purchaserID,
		Type:        in.Type,
		Amount:      in.Amount,
		Date:        in.Date,
		Notes:       in.Notes,
	}

	if err := s.repo.AddLedgerEntry(ctx, e); err != nil {
		return nil, err
	}

	s.audit(ctx, actor.ID, "create", "ledger_entry", e.ID.String())
	return s.repo.GetLedgerEntryByID(ctx, e.ID)
}

// UpdateLedgerEntry изменяет запись кредитной книги и пересчитывает балансы.
// Покупатель записи не меняется.
func (s *Service) UpdateLedgerEntry(ctx context.Context, actor model.User, id uuid.UUID, in LedgerInput) (*model.LedgerEntry, error) {
	if actor.Role == model.RoleSalesman || actor.Role == model.RolePurchaser {
		return nil, ErrForbidden
	}
	if err := validateLedgerInput(in); err != nil {
		return nil, err
	}

	e := &model.LedgerEntry{
		ID:     id,
		Type:   in.Type,
		Amount: in.Amount,
		Date:   in.Date,
		Notes:  in.Notes,
	}

	if err := s.repo.UpdateLedgerEntry(ctx, e); err != nil {
		return nil, err
	}

	s.audit(ctx, actor.ID, "update", "ledger_entry", id.String())
	return s.repo.GetLedgerEntryByID(ctx, id)
}

// DeleteLedgerEntry удаляет запись кредитной книги и пересчитывает балансы.
func (s *Service) DeleteLedgerEntry(ctx context.Context, actor model.User, id uuid.UUID) error {
	if actor.Role == model.RoleSalesman || actor.Role == model.RolePurchaser {
		return ErrForbidden
	}

	if err := s.repo.DeleteLedgerEntry(ctx, id); err != nil {
		return err
	}

	s.audit(ctx, actor.ID, "delete", "ledger_entry", id.String())
	return nil
}

// ListLedgerEntries возвращает записи кредитной книги по фильтру.
func (s *Service) ListLedgerEntries(ctx context.Context, f model.LedgerFilter) ([]model.LedgerEntry, error) {
	return s.repo.ListLedgerEntries(ctx, f)
}

// GetLedgerSummary возвращает сводку кредитной книги покупателя.
func (s *Service) GetLedgerSummary(ctx context.Context, purchaserID int64) (*model.LedgerSummary, error) {
	if _, err := s.repo.GetUserByID(ctx, purchaserID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, repository.ErrPurchaserNotFound
		}
		return nil, err
	}
	return s.repo.GetLedgerSummary(ctx, purchaserID)
}

// ListAuditLogs возвращает журнал действий; доступен только администратору.
func (s *Service) ListAuditLogs(ctx context.Context, actor model.User, limit int) ([]model.AuditLog, error) {
	if actor.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

// audit сохраняет запись журнала действий. Ошибка записи не прерывает
// успешно завершённую операцию.
func (s *Service) audit(ctx context.Context, actorID int64, action, entity, entityID string) {
	_ = s.repo.CreateAuditLog(ctx, &model.AuditLog{
		ID:       uuid.New(),
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
	})
}

// StartVarianceAlerts запускает фоновый процесс отправки оповещений о
// расхождениях по утверждённым сменам.
func (s *Service) StartVarianceAlerts(ctx context.Context) {
	if s.alertClient == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processAlertBatch(ctx)
			}
		}
	}()
}

func (s *Service) processAlertBatch(ctx context.Context) {
	readings, err := s.repo.GetReadingsForAlert(ctx, s.alertThreshold, 100)
	if err != nil {
		return
	}

	for _, rd := range readings {
		err := s.alertClient.SendVarianceAlert(ctx, alert.VarianceAlert{
			ReadingID:   rd.ID.String(),
			Date:        rd.Date.Format("2006-01-02"),
			Machine:     rd.MachineName,
			Shift:       rd.Shift,
			NetAmount:   rd.NetAmount,
			ShortExcess: rd.ShortExcess,
		})
		if err != nil {
			continue
		}

		_ = s.repo.MarkReadingAlerted(ctx, rd.ID)
	}
}

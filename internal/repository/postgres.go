// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pumpstation-system/internal/ledger"
	"github.com/mmeshcher/pumpstation-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrMachineNotFound возвращается, если колонка не найдена.
	ErrMachineNotFound = errors.New("machine not found")
	// ErrMachineExists возвращается при попытке создать колонку с занятым именем.
	ErrMachineExists = errors.New("machine already exists")
	// ErrReadingNotFound возвращается, если запись показаний смены не найдена.
	ErrReadingNotFound = errors.New("shift reading not found")
	// ErrReadingApproved возвращается при повторной попытке утвердить запись.
	ErrReadingApproved = errors.New("shift reading already approved")
	// ErrPurchaserNotFound возвращается, если покупатель кредитной книги не найден.
	ErrPurchaserNotFound = errors.New("purchaser not found")
	// ErrEntryNotFound возвращается, если запись кредитной книги не найдена.
	ErrEntryNotFound = errors.New("ledger entry not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlocks.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя с указанной ролью.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, role) VALUES ($1, $2, $3) RETURNING id`,
		login, passwordHash, string(role),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, created_at FROM users WHERE id = $1`,
		id,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// CreateMachine создаёт новую колонку.
func (r *PostgresRepository) CreateMachine(ctx context.Context, m *model.Machine) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO machines (name, fuel, rate, current_reading) VALUES ($1, $2, $3, $4) RETURNING id`,
		m.Name, m.Fuel, m.Rate, m.CurrentReading,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrMachineExists, m.Name)
		}
		return 0, fmt.Errorf("create machine: %w", err)
	}
	return id, nil
}

// GetMachineByID возвращает колонку по идентификатору.
func (r *PostgresRepository) GetMachineByID(ctx context.Context, id int64) (*model.Machine, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, fuel, rate, current_reading, created_at FROM machines WHERE id = $1`,
		id,
	)

	var m model.Machine
	err := row.Scan(&m.ID, &m.Name, &m.Fuel, &m.Rate, &m.CurrentReading, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMachineNotFound
		}
		return nil, fmt.Errorf("get machine: %w", err)
	}

	return &m, nil
}

// ListMachines возвращает список всех колонок.
func (r *PostgresRepository) ListMachines(ctx context.Context) ([]model.Machine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, fuel, rate, current_reading, created_at
		 FROM machines
		 ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("select machines: %w", err)
	}
	defer rows.Close()

	var res []model.Machine
	for rows.Next() {
		var m model.Machine
		if err := rows.Scan(&m.ID, &m.Name, &m.Fuel, &m.Rate, &m.CurrentReading, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan machine: %w", err)
		}
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateTesting сохраняет запись о проверочном сливе топлива.
func (r *PostgresRepository) CreateTesting(ctx context.Context, t *model.TestingRecord) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO testings (machine_id, test_date, volume) VALUES ($1, $2, $3) RETURNING id`,
		t.MachineID, t.Date, t.Volume,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return 0, ErrMachineNotFound
		}
		return 0, fmt.Errorf("create testing: %w", err)
	}
	return id, nil
}

// ListTestings возвращает записи о проверках с фильтрацией по колонке и датам.
func (r *PostgresRepository) ListTestings(ctx context.Context, f model.TestingFilter) ([]model.TestingRecord, error) {
	query := `SELECT id, machine_id, test_date, volume, created_at FROM testings WHERE 1=1`
	var args []any

	if f.MachineID != 0 {
		args = append(args, f.MachineID)
		query += fmt.Sprintf(" AND machine_id = $%d", len(args))
	}
	if !f.DateFrom.IsZero() {
		args = append(args, f.DateFrom)
		query += fmt.Sprintf(" AND test_date >= $%d", len(args))
	}
	if !f.DateTo.IsZero() {
		args = append(args, f.DateTo)
		query += fmt.Sprintf(" AND test_date <= $%d", len(args))
	}
	query += ` ORDER BY test_date DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select testings: %w", err)
	}
	defer rows.Close()

	var res []model.TestingRecord
	for rows.Next() {
		var t model.TestingRecord
		if err := rows.Scan(&t.ID, &t.MachineID, &t.Date, &t.Volume, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan testing: %w", err)
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// TestingVolume возвращает суммарный объём проверок колонки за дату.
func (r *PostgresRepository) TestingVolume(ctx context.Context, machineID int64, date time.Time) (decimal.Decimal, error) {
	var volume decimal.Decimal
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(volume), 0)
		 FROM testings
		 WHERE machine_id = $1 AND test_date = $2`,
		machineID, date,
	).Scan(&volume)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum testing volume: %w", err)
	}
	return volume, nil
}

func marshalExpenses(expenses []model.ExpenseLine) ([]byte, error) {
	if expenses == nil {
		expenses = []model.ExpenseLine{}
	}
	data, err := json.Marshal(expenses)
	if err != nil {
		return nil, fmt.Errorf("marshal expenses: %w", err)
	}
	return data, nil
}

const readingColumns = `id, reading_date, machine_id, shift, start_reading, end_reading, rate,
	 is_testing_done, testing_volume, cash, card, upi, credit, expenses,
	 sale_volume, expense_total, net_amount, short_excess, status, created_by,
	 alerted_at, created_at, updated_at`

func scanReading(row pgx.Row) (*model.ShiftReading, error) {
	var (
		sr          model.ShiftReading
		expensesRaw []byte
		status      string
	)
	err := row.Scan(
		&sr.ID, &sr.Date, &sr.MachineID, &sr.Shift, &sr.StartReading, &sr.EndReading, &sr.Rate,
		&sr.IsTestingDone, &sr.TestingVolume, &sr.Cash, &sr.Card, &sr.UPI, &sr.Credit, &expensesRaw,
		&sr.SaleVolume, &sr.ExpenseTotal, &sr.NetAmount, &sr.ShortExcess, &status, &sr.CreatedBy,
		&sr.AlertedAt, &sr.CreatedAt, &sr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sr.Status = model.ReadingStatus(status)
	if err := json.Unmarshal(expensesRaw, &sr.Expenses); err != nil {
		return nil, fmt.Errorf("unmarshal expenses: %w", err)
	}

	return &sr, nil
}

// CreateReading сохраняет новую запись показаний смены вместе с расчётными полями.
func (r *PostgresRepository) CreateReading(ctx context.Context, sr *model.ShiftReading) error {
	expenses, err := marshalExpenses(sr.Expenses)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO shift_readings
		 (id, reading_date, machine_id, shift, start_reading, end_reading, rate,
		  is_testing_done, testing_volume, cash, card, upi, credit, expenses,
		  sale_volume, expense_total, net_amount, short_excess, status, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		sr.ID, sr.Date, sr.MachineID, sr.Shift, sr.StartReading, sr.EndReading, sr.Rate,
		sr.IsTestingDone, sr.TestingVolume, sr.Cash, sr.Card, sr.UPI, sr.Credit, expenses,
		sr.SaleVolume, sr.ExpenseTotal, sr.NetAmount, sr.ShortExcess, string(sr.Status), sr.CreatedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrMachineNotFound
		}
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// GetReadingByID возвращает запись показаний смены по идентификатору.
func (r *PostgresRepository) GetReadingByID(ctx context.Context, id uuid.UUID) (*model.ShiftReading, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+readingColumns+` FROM shift_readings WHERE id = $1`, id,
	)

	sr, err := scanReading(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReadingNotFound
		}
		return nil, fmt.Errorf("get reading: %w", err)
	}
	return sr, nil
}

// UpdateReading перезаписывает входные и расчётные поля записи показаний.
func (r *PostgresRepository) UpdateReading(ctx context.Context, sr *model.ShiftReading) error {
	expenses, err := marshalExpenses(sr.Expenses)
	if err != nil {
		return err
	}

	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE shift_readings SET
		 reading_date = $2, machine_id = $3, shift = $4, start_reading = $5, end_reading = $6,
		 rate = $7, is_testing_done = $8, testing_volume = $9, cash = $10, card = $11,
		 upi = $12, credit = $13, expenses = $14, sale_volume = $15, expense_total = $16,
		 net_amount = $17, short_excess = $18, updated_at = now()
		 WHERE id = $1`,
		sr.ID, sr.Date, sr.MachineID, sr.Shift, sr.StartReading, sr.EndReading,
		sr.Rate, sr.IsTestingDone, sr.TestingVolume, sr.Cash, sr.Card,
		sr.UPI, sr.Credit, expenses, sr.SaleVolume, sr.ExpenseTotal,
		sr.NetAmount, sr.ShortExcess,
	)
	if err != nil {
		return fmt.Errorf("update reading: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrReadingNotFound
	}
	return nil
}

// DeleteReading удаляет запись показаний смены.
func (r *PostgresRepository) DeleteReading(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM shift_readings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reading: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrReadingNotFound
	}
	return nil
}

// ApproveReading переводит запись в статус approved и продвигает текущее
// показание счётчика колонки до конечного показания записи. Обе операции
// выполняются в одной транзакции.
func (r *PostgresRepository) ApproveReading(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		machineID  int64
		endReading decimal.Decimal
	)
	err = tx.QueryRow(ctx,
		`UPDATE shift_readings SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = $3
		 RETURNING machine_id, end_reading`,
		id, string(model.ReadingStatusApproved), string(model.ReadingStatusPending),
	).Scan(&machineID, &endReading)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if checkErr := r.pool.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM shift_readings WHERE id = $1)`, id,
			).Scan(&exists); checkErr != nil {
				return fmt.Errorf("check reading: %w", checkErr)
			}
			if exists {
				return ErrReadingApproved
			}
			return ErrReadingNotFound
		}
		return fmt.Errorf("approve reading: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE machines SET current_reading = $2 WHERE id = $1`,
		machineID, endReading,
	)
	if err != nil {
		return fmt.Errorf("advance machine reading: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListReadings возвращает записи показаний с фильтрацией.
func (r *PostgresRepository) ListReadings(ctx context.Context, f model.ReadingFilter) ([]model.ShiftReading, error) {
	query := `SELECT ` + readingColumns + ` FROM shift_readings WHERE 1=1`
	var args []any

	if f.MachineID != 0 {
		args = append(args, f.MachineID)
		query += fmt.Sprintf(" AND machine_id = $%d", len(args))
	}
	if f.Shift != "" {
		args = append(args, f.Shift)
		query += fmt.Sprintf(" AND shift = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.CreatedBy != 0 {
		args = append(args, f.CreatedBy)
		query += fmt.Sprintf(" AND created_by = $%d", len(args))
	}
	if !f.DateFrom.IsZero() {
		args = append(args, f.DateFrom)
		query += fmt.Sprintf(" AND reading_date >= $%d", len(args))
	}
	if !f.DateTo.IsZero() {
		args = append(args, f.DateTo)
		query += fmt.Sprintf(" AND reading_date <= $%d", len(args))
	}
	query += ` ORDER BY reading_date DESC, created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select readings: %w", err)
	}
	defer rows.Close()

	var res []model.ShiftReading
	for rows.Next() {
		sr, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		res = append(res, *sr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ReadingForAlert описывает утверждённую запись, ожидающую отправки
// оповещения о расхождении.
type ReadingForAlert struct {
	ID          uuid.UUID
	Date        time.Time
	MachineName string
	Shift       string
	NetAmount   decimal.Decimal
	ShortExcess decimal.Decimal
}

// GetReadingsForAlert возвращает утверждённые записи с расхождением не
// меньше порога, для которых оповещение ещё не отправлялось.
func (r *PostgresRepository) GetReadingsForAlert(ctx context.Context, threshold decimal.Decimal, limit int) ([]ReadingForAlert, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT sr.id, sr.reading_date, m.name, sr.shift, sr.net_amount, sr.short_excess
		 FROM shift_readings sr
		 JOIN machines m ON m.id = sr.machine_id
		 WHERE sr.status = $1 AND sr.alerted_at IS NULL AND abs(sr.short_excess) >= $2
		 ORDER BY sr.updated_at
		 LIMIT $3`,
		string(model.ReadingStatusApproved), threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select readings for alert: %w", err)
	}
	defer rows.Close()

	var res []ReadingForAlert
	for rows.Next() {
		var a ReadingForAlert
		if err := rows.Scan(&a.ID, &a.Date, &a.MachineName, &a.Shift, &a.NetAmount, &a.ShortExcess); err != nil {
			return nil, fmt.Errorf("scan reading for alert: %w", err)
		}
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkReadingAlerted отмечает запись как оповещённую.
func (r *PostgresRepository) MarkReadingAlerted(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE shift_readings SET alerted_at = now() WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("mark reading alerted: %w", err)
	}
	return nil
}

// lockPurchaser блокирует строку покупателя, сериализуя пересчёты его
// кредитной книги между конкурентными транзакциями.
func lockPurchaser(ctx context.Context, tx pgx.Tx, purchaserID int64) error {
	var dummy int
	err := tx.QueryRow(ctx,
		`SELECT 1 FROM users WHERE id = $1 AND role = $2 FOR UPDATE`,
		purchaserID, string(model.RolePurchaser),
	).Scan(&dummy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPurchaserNotFound
		}
		return fmt.Errorf("lock purchaser: %w", err)
	}
	return nil
}

// recalculateLocked перечитывает все записи покупателя в хронологическом
// порядке и перезаписывает изменившиеся накопительные балансы. Вызывается
// только под блокировкой строки покупателя.
func recalculateLocked(ctx context.Context, tx pgx.Tx, purchaserID int64) error {
	rows, err := tx.Query(ctx,
		`SELECT id, seq, purchaser_id, entry_type, amount, entry_date, notes, balance_after, created_at
		 FROM ledger_entries
		 WHERE purchaser_id = $1
		 ORDER BY entry_date, seq`,
		purchaserID,
	)
	if err != nil {
		return fmt.Errorf("select entries: %w", err)
	}

	var (
		entries []model.LedgerEntry
		before  []decimal.Decimal
	)
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Seq, &e.PurchaserID, &e.Type, &e.Amount, &e.Date, &e.Notes, &e.BalanceAfter, &e.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
		before = append(before, e.BalanceAfter)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	ledger.Recalculate(entries)

	for i := range entries {
		if entries[i].BalanceAfter.Equal(before[i]) {
			continue
		}
		_, err := tx.Exec(ctx,
			`UPDATE ledger_entries SET balance_after = $2 WHERE id = $1`,
			entries[i].ID, entries[i].BalanceAfter,
		)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
	}

	return nil
}

// AddLedgerEntry вставляет запись кредитной книги и пересчитывает балансы
// покупателя. Вставка и пересчёт атомарны: при ошибке пересчёта прежние
// балансы остаются нетронутыми.
func (r *PostgresRepository) AddLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := lockPurchaser(ctx, tx, e.PurchaserID); err != nil {
			return err
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO ledger_entries (id, purchaser_id, entry_type, amount, entry_date, notes)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING seq, created_at`,
			e.ID, e.PurchaserID, string(e.Type), e.Amount, e.Date, e.Notes,
		).Scan(&e.Seq, &e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}

		if err := recalculateLocked(ctx, tx, e.PurchaserID); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// UpdateLedgerEntry изменяет тип, сумму, дату и примечание записи и
// пересчитывает балансы покупателя.
func (r *PostgresRepository) UpdateLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var purchaserID int64
		err = tx.QueryRow(ctx,
			`SELECT purchaser_id FROM ledger_entries WHERE id = $1`, e.ID,
		).Scan(&purchaserID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrEntryNotFound
			}
			return fmt.Errorf("select entry: %w", err)
		}

		if err := lockPurchaser(ctx, tx, purchaserID); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE ledger_entries SET entry_type = $2, amount = $3, entry_date = $4, notes = $5
			 WHERE id = $1`,
			e.ID, string(e.Type), e.Amount, e.Date, e.Notes,
		)
		if err != nil {
			return fmt.Errorf("update entry: %w", err)
		}

		if err := recalculateLocked(ctx, tx, purchaserID); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// DeleteLedgerEntry удаляет запись и пересчитывает балансы покупателя.
func (r *PostgresRepository) DeleteLedgerEntry(ctx context.Context, id uuid.UUID) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var purchaserID int64
		err = tx.QueryRow(ctx,
			`SELECT purchaser_id FROM ledger_entries WHERE id = $1`, id,
		).Scan(&purchaserID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrEntryNotFound
			}
			return fmt.Errorf("select entry: %w", err)
		}

		if err := lockPurchaser(ctx, tx, purchaserID); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `DELETE FROM ledger_entries WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}

		if err := recalculateLocked(ctx, tx, purchaserID); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// GetLedgerEntryByID возвращает запись кредитной книги по идентификатору.
func (r *PostgresRepository) GetLedgerEntryByID(ctx context.Context, id uuid.UUID) (*model.LedgerEntry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, seq, purchaser_id, entry_type, amount, entry_date, notes, balance_after, created_at
		 FROM ledger_entries WHERE id = $1`, id,
	)

	var e model.LedgerEntry
	err := row.Scan(&e.ID, &e.Seq, &e.PurchaserID, &e.Type, &e.Amount, &e.Date, &e.Notes, &e.BalanceAfter, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}

	return &e, nil
}

// ListLedgerEntries возвращает записи кредитной книги с фильтрацией.
func (r *PostgresRepository) ListLedgerEntries(ctx context.Context, f model.LedgerFilter) ([]model.LedgerEntry, error) {
	query := `SELECT id, seq, purchaser_id, entry_type, amount, entry_date, notes, balance_after, created_at
		 FROM ledger_entries WHERE 1=1`
	var args []any

	if f.PurchaserID != 0 {
		args = append(args, f.PurchaserID)
		query += fmt.Sprintf(" AND purchaser_id = $%d", len(args))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		query += fmt.Sprintf(" AND entry_type = $%d", len(args))
	}
	if !f.DateFrom.IsZero() {
		args = append(args, f.DateFrom)
		query += fmt.Sprintf(" AND entry_date >= $%d", len(args))
	}
	if !f.DateTo.IsZero() {
		args = append(args, f.DateTo)
		query += fmt.Sprintf(" AND entry_date <= $%d", len(args))
	}
	query += ` ORDER BY entry_date DESC, seq DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	defer rows.Close()

	var res []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Seq, &e.PurchaserID, &e.Type, &e.Amount, &e.Date, &e.Notes, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetLedgerSummary возвращает сводку кредитной книги покупателя.
func (r *PostgresRepository) GetLedgerSummary(ctx context.Context, purchaserID int64) (*model.LedgerSummary, error) {
	var s model.LedgerSummary
	err := r.pool.QueryRow(ctx,
		`SELECT
		 COALESCE(SUM(amount) FILTER (WHERE entry_type = 'credit'), 0),
		 COALESCE(SUM(amount) FILTER (WHERE entry_type = 'payment'), 0)
		 FROM ledger_entries
		 WHERE purchaser_id = $1`,
		purchaserID,
	).Scan(&s.TotalCredit, &s.TotalPaid)
	if err != nil {
		return nil, fmt.Errorf("sum ledger: %w", err)
	}

	s.Balance = s.TotalCredit.Sub(s.TotalPaid)
	return &s, nil
}

// CreateAuditLog сохраняет запись журнала действий.
func (r *PostgresRepository) CreateAuditLog(ctx context.Context, l *model.AuditLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, actor_id, action, entity, entity_id) VALUES ($1, $2, $3, $4, $5)`,
		l.ID, l.ActorID, l.Action, l.Entity, l.EntityID,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListAuditLogs возвращает последние записи журнала действий.
func (r *PostgresRepository) ListAuditLogs(ctx context.Context, limit int) ([]model.AuditLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, actor_id, action, entity, entity_id, created_at
		 FROM audit_logs
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select audit logs: %w", err)
	}
	defer rows.Close()

	var res []model.AuditLog
	for rows.Next() {
		var l model.AuditLog
		if err := rows.Scan(&l.ID, &l.ActorID, &l.Action, &l.Entity, &l.EntityID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		res = append(res, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

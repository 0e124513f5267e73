// Package model содержит доменные сущности сервиса учёта АЗС.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя в системе.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleSalesman  Role = "salesman"
	RolePurchaser Role = "purchaser"
)

// Valid возвращает true, если роль входит в число известных.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleSalesman, RolePurchaser:
		return true
	}
	return false
}

// User представляет зарегистрированного пользователя системы.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
}

// Machine описывает топливораздаточную колонку станции.
type Machine struct {
	ID             int64
	Name           string
	Fuel           string
	Rate           decimal.Decimal
	CurrentReading decimal.Decimal
	CreatedAt      time.Time
}

// TestingRecord описывает объём топлива, слитый при проверке колонки.
// Объёмы за дату суммируются и вычитаются из продажи смены.
type TestingRecord struct {
	ID        int64
	MachineID int64
	Date      time.Time
	Volume    decimal.Decimal
	CreatedAt time.Time
}

// ReadingStatus описывает статус записи показаний смены.
type ReadingStatus string

const (
	ReadingStatusPending  ReadingStatus = "pending"
	ReadingStatusApproved ReadingStatus = "approved"
)

// ExpenseLine описывает одну строку расходов смены.
type ExpenseLine struct {
	Amount  decimal.Decimal `json:"amount"`
	Remarks string          `json:"remarks"`
}

// ShiftReading представляет показания счётчика колонки за одну смену
// вместе с собранными платежами и расчётными полями сверки.
type ShiftReading struct {
	ID            uuid.UUID
	Date          time.Time
	MachineID     int64
	Shift         string
	StartReading  decimal.Decimal
	EndReading    decimal.Decimal
	Rate          decimal.Decimal
	IsTestingDone bool
	TestingVolume decimal.Decimal
	Cash          decimal.Decimal
	Card          decimal.Decimal
	UPI           decimal.Decimal
	Credit        decimal.Decimal
	Expenses      []ExpenseLine

	// Расчётные поля; перезаписываются при каждой мутации записи.
	SaleVolume   decimal.Decimal
	ExpenseTotal decimal.Decimal
	NetAmount    decimal.Decimal
	ShortExcess  decimal.Decimal

	Status    ReadingStatus
	CreatedBy int64
	AlertedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntryType описывает тип записи кредитной книги.
type EntryType string

const (
	// EntryTypeCredit — топливо отпущено в долг, долг покупателя растёт.
	EntryTypeCredit EntryType = "credit"
	// EntryTypePayment — покупатель внёс оплату, долг уменьшается.
	EntryTypePayment EntryType = "payment"
)

// Valid возвращает true для известного типа записи.
func (t EntryType) Valid() bool {
	return t == EntryTypeCredit || t == EntryTypePayment
}

// LedgerEntry представляет одну запись кредитной книги покупателя.
// Seq задаёт стабильный порядок записей с одинаковой датой.
type LedgerEntry struct {
	ID           uuid.UUID
	Seq          int64
	PurchaserID  int64
	Type         EntryType
	Amount       decimal.Decimal
	Date         time.Time
	Notes        string
	BalanceAfter decimal.Decimal
	CreatedAt    time.Time
}

// LedgerSummary содержит сводку кредитной книги покупателя.
type LedgerSummary struct {
	TotalCredit decimal.Decimal `json:"totalCredit"`
	TotalPaid   decimal.Decimal `json:"totalPaid"`
	Balance     decimal.Decimal `json:"balance"`
}

// ReadingFilter задаёт условия выборки записей показаний смен.
// Нулевые поля не участвуют в фильтрации.
type ReadingFilter struct {
	MachineID int64
	Shift     string
	Status    ReadingStatus
	CreatedBy int64
	DateFrom  time.Time
	DateTo    time.Time
}

// LedgerFilter задаёт условия выборки записей кредитной книги.
type LedgerFilter struct {
	PurchaserID int64
	Type        EntryType
	DateFrom    time.Time
	DateTo      time.Time
}

// TestingFilter задаёт условия выборки записей о проверках.
type TestingFilter struct {
	MachineID int64
	DateFrom  time.Time
	DateTo    time.Time
}

// AuditLog описывает одну запись журнала действий.
type AuditLog struct {
	ID        uuid.UUID
	ActorID   int64
	Action    string
	Entity    string
	EntityID  string
	CreatedAt time.Time
}

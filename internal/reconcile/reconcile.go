// Package reconcile реализует расчёт сверки смены: объём продажи,
// чистую сумму и недостачу либо излишек собранных средств.
package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pumpstation-system/internal/model"
)

// ValidationError описывает недопустимое входное поле расчёта.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %s must not be negative", e.Field)
}

// Input содержит исходные данные смены для расчёта сверки.
type Input struct {
	StartReading  decimal.Decimal
	EndReading    decimal.Decimal
	Rate          decimal.Decimal
	IsTestingDone bool
	TestingVolume decimal.Decimal
	Cash          decimal.Decimal
	Card          decimal.Decimal
	UPI           decimal.Decimal
	Credit        decimal.Decimal
	Expenses      []model.ExpenseLine
}

// Result содержит расчётные поля сверки смены.
type Result struct {
	SaleVolume       decimal.Decimal
	GrossAmount      decimal.Decimal
	TestingDeduction decimal.Decimal
	NetAmount        decimal.Decimal
	Collected        decimal.Decimal
	ExpenseTotal     decimal.Decimal
	ShortExcess      decimal.Decimal
}

// Compute выполняет полный расчёт сверки по показаниям смены.
// Расчёт детерминирован и не имеет побочных эффектов; отрицательные
// входные значения отклоняются до вычислений.
//
// Откат счётчика (endReading < startReading) не ошибка: объём продажи
// ограничивается нулём. Отрицательная чистая сумма возможна, если
// списание на проверку превышает валовую продажу, — запись сохраняется
// и остаётся на ручной разбор.
func Compute(in Input) (Result, error) {
	if err := validate(in); err != nil {
		return Result{}, err
	}

	saleVolume := in.EndReading.Sub(in.StartReading)
	if saleVolume.IsNegative() {
		saleVolume = decimal.Zero
	}

	grossAmount := saleVolume.Mul(in.Rate)

	testingDeduction := decimal.Zero
	if in.IsTestingDone {
		testingDeduction = in.TestingVolume.Mul(in.Rate)
	}

	netAmount := grossAmount.Sub(testingDeduction)

	collected := in.Cash.Add(in.Card).Add(in.UPI).Add(in.Credit)

	expenseTotal := decimal.Zero
	for _, e := range in.Expenses {
		expenseTotal = expenseTotal.Add(e.Amount)
	}

	// Расходы — наличные, законно покинувшие кассу; перед сравнением
	// собранного с начисленным они возвращаются в сумму сбора.
	shortExcess := collected.Add(expenseTotal).Sub(netAmount)

	return Result{
		SaleVolume:       saleVolume,
		GrossAmount:      grossAmount,
		TestingDeduction: testingDeduction,
		NetAmount:        netAmount,
		Collected:        collected,
		ExpenseTotal:     expenseTotal,
		ShortExcess:      shortExcess,
	}, nil
}

func validate(in Input) error {
	checks := []struct {
		field string
		value decimal.Decimal
	}{
		{"startReading", in.StartReading},
		{"endReading", in.EndReading},
		{"rate", in.Rate},
		{"testingVolume", in.TestingVolume},
		{"cash", in.Cash},
		{"card", in.Card},
		{"upi", in.UPI},
		{"credit", in.Credit},
	}

	for _, c := range checks {
		if c.value.IsNegative() {
			return &ValidationError{Field: c.field}
		}
	}

	for _, e := range in.Expenses {
		if e.Amount.IsNegative() {
			return &ValidationError{Field: "expenses.amount"}
		}
	}

	return nil
}

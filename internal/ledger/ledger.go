// Package ledger реализует пересчёт накопительного баланса кредитной
// книги покупателя и сводку по записям.
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pumpstation-system/internal/model"
)

// SignedAmount возвращает сумму записи со знаком: кредит увеличивает
// долг покупателя, платёж уменьшает.
func SignedAmount(e model.LedgerEntry) decimal.Decimal {
	if e.Type == model.EntryTypePayment {
		return e.Amount.Neg()
	}
	return e.Amount
}

// Order сортирует записи по дате, при равных датах — по порядку создания.
// Возвращает тот же срез.
func Order(entries []model.LedgerEntry) []model.LedgerEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].Seq < entries[j].Seq
	})
	return entries
}

// Recalculate проходит записи одного покупателя в хронологическом порядке
// и проставляет каждой накопительный баланс. Записи должны быть заранее
// упорядочены (см. Order); срез изменяется на месте и возвращается.
func Recalculate(entries []model.LedgerEntry) []model.LedgerEntry {
	running := decimal.Zero
	for i := range entries {
		running = running.Add(SignedAmount(entries[i]))
		entries[i].BalanceAfter = running
	}
	return entries
}

// Summarize возвращает сводку по записям: суммарный кредит, суммарные
// платежи и итоговый баланс. Положительный баланс — долг покупателя,
// отрицательный — аванс.
func Summarize(entries []model.LedgerEntry) model.LedgerSummary {
	totalCredit := decimal.Zero
	totalPaid := decimal.Zero

	for _, e := range entries {
		switch e.Type {
		case model.EntryTypeCredit:
			totalCredit = totalCredit.Add(e.Amount)
		case model.EntryTypePayment:
			totalPaid = totalPaid.Add(e.Amount)
		}
	}

	return model.LedgerSummary{
		TotalCredit: totalCredit,
		TotalPaid:   totalPaid,
		Balance:     totalCredit.Sub(totalPaid),
	}
}

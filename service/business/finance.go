package business

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/edusuite/service-fees/service/models"
	"github.com/edusuite/service-fees/service/repository"
	"github.com/edusuite/service-fees/service/utility"
	"github.com/pitabwire/frame"
)

// FinanceBusiness records the month-end inputs reconciliation depends on:
// expenses and bank statement closing balances.
type FinanceBusiness interface {
	RecordExpense(ctx context.Context, expense *models.Expense, user string) (*models.Expense, error)
	RecordBankStatement(ctx context.Context, year int, month time.Month, closing decimal.Decimal, user string) error
}

func NewFinanceBusiness(_ context.Context, service *frame.Service, repos *repository.Repositories) FinanceBusiness {
	return &financeBusiness{service: service, repos: repos}
}

type financeBusiness struct {
	service *frame.Service
	repos   *repository.Repositories
}

func (fb *financeBusiness) RecordExpense(ctx context.Context, expense *models.Expense, user string) (*models.Expense, error) {
	if !expense.Amount.GreaterThan(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if expense.Date.IsZero() {
		return nil, ErrInvalidDate
	}

	expense.Amount = utility.RoundAmount(expense.Amount)
	expense.RecordedBy = user

	err := fb.repos.Tx.InTransaction(ctx, func(ctx context.Context) error {
		expense.GenID(ctx)
		if err := fb.repos.Expenses.Save(ctx, expense); err != nil {
			return err
		}
		return appendAudit(ctx, fb.repos.Audits, AuditActionCreate, "Expense",
			expense.GetID(), user, nil, expense,
			fmt.Sprintf("expense of %s recorded", utility.FormatAmount(expense.Amount)))
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

func (fb *financeBusiness) RecordBankStatement(
	ctx context.Context, year int, month time.Month, closing decimal.Decimal, user string,
) error {
	if year < 2000 || month < time.January || month > time.December {
		return &ValidationError{Code: "invalid_period", Message: "year and month must name a real period"}
	}

	statement := &models.BankStatement{
		Year:           year,
		Month:          int(month),
		ClosingBalance: utility.RoundAmount(closing),
		RecordedBy:     user,
	}

	return fb.repos.Tx.InTransaction(ctx, func(ctx context.Context) error {
		statement.GenID(ctx)
		if err := fb.repos.Bank.Save(ctx, statement); err != nil {
			return err
		}
		return appendAudit(ctx, fb.repos.Audits, AuditActionCreate, "BankStatement",
			fmt.Sprintf("%04d-%02d", year, month), user, nil, statement,
			fmt.Sprintf("bank closing balance of %s captured", utility.FormatAmount(statement.ClosingBalance)))
	})
}

// StoredBankStatements adapts the bank statement repository to the
// reconciliation engine's statement source.
type StoredBankStatements struct {
	Repos *repository.Repositories
}

func (s *StoredBankStatements) ClosingBalance(ctx context.Context, year int, month time.Month) (decimal.Decimal, error) {
	statement, err := s.Repos.Bank.GetByMonth(ctx, year, int(month))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, &ValidationError{Code: "statement_missing",
			Message: fmt.Sprintf("no bank statement captured for %04d-%02d", year, month)}
	}
	if err != nil {
		return decimal.Zero, err
	}
	return statement.ClosingBalance, nil
}

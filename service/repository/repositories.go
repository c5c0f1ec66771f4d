package repository

import (
	"context"

	"github.com/pitabwire/frame"
)

// Repositories bundles every entity repository plus the transaction manager
// so business constructors take one dependency instead of nine.
type Repositories struct {
	Tx TxManager

	Fees         FeeRepository
	Bills        BillRepository
	Payments     PaymentRepository
	BillPayments BillPaymentRepository
	Credits      CreditRepository
	Pending      PendingPaymentRepository
	Audits       AuditRepository
	Expenses     ExpenseRepository
	Bank         BankStatementRepository
}

func NewRepositories(ctx context.Context, service *frame.Service) *Repositories {
	return &Repositories{
		Tx:           NewTxManager(ctx, service),
		Fees:         NewFeeRepository(ctx, service),
		Bills:        NewBillRepository(ctx, service),
		Payments:     NewPaymentRepository(ctx, service),
		BillPayments: NewBillPaymentRepository(ctx, service),
		Credits:      NewCreditRepository(ctx, service),
		Pending:      NewPendingPaymentRepository(ctx, service),
		Audits:       NewAuditRepository(ctx, service),
		Expenses:     NewExpenseRepository(ctx, service),
		Bank:         NewBankStatementRepository(ctx, service),
	}
}

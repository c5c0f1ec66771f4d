package models

import (
	"time"

	"github.com/pitabwire/frame"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"
	PaymentStatusOverdue = "overdue"

	GenerationStatusDraft     = "draft"
	GenerationStatusGenerated = "generated"
	GenerationStatusVerified  = "verified"
	GenerationStatusLocked    = "locked"
	GenerationStatusCancelled = "cancelled"

	PendingStatusPending   = "pending"
	PendingStatusCompleted = "completed"
	PendingStatusFailed    = "failed"
	PendingStatusCancelled = "cancelled"

	PaymentModeCash         = "cash"
	PaymentModeCheque       = "cheque"
	PaymentModeBankTransfer = "bank_transfer"
	PaymentModeMobileMoney  = "mobile_money"
	PaymentModeOnline       = "online"
	PaymentModeOther        = "other"

	TargetTypeFee  = "fee"
	TargetTypeBill = "bill"
)

// Fee is one student's obligation for a category in a term.
// Balance is always derived from AmountPayable - AmountPaid; it is never
// written independently.
type Fee struct {
	frame.BaseModel

	StudentID    string `gorm:"type:varchar(50);index"`
	Category     string `gorm:"type:varchar(100)"`
	AcademicYear string `gorm:"type:varchar(9)"`
	Term         int

	AmountPayable decimal.Decimal `gorm:"type:numeric"`
	AmountPaid    decimal.Decimal `gorm:"type:numeric"`
	Balance       decimal.Decimal `gorm:"type:numeric"`

	PaymentStatus    string `gorm:"type:varchar(20);index"`
	GenerationStatus string `gorm:"type:varchar(20);index"`

	DueDate    *time.Time `gorm:"index"`
	RecordedBy string     `gorm:"type:varchar(50)"`
	Notes      string     `gorm:"type:text"`
}

// CanAcceptPayments reports whether new payments may be recorded against
// the fee. Existing payments on locked or cancelled fees stay queryable.
func (f *Fee) CanAcceptPayments() bool {
	return f.GenerationStatus != GenerationStatusLocked &&
		f.GenerationStatus != GenerationStatusCancelled
}

func (f *Fee) OverpaymentAmount() decimal.Decimal {
	if f.AmountPaid.GreaterThan(f.AmountPayable) {
		return f.AmountPaid.Sub(f.AmountPayable)
	}
	return decimal.Zero
}

// RecomputePaymentStatus derives a fee or bill payment status from its
// amounts. Pure so it can be exercised on its own: the storage layer calls
// it on every write path that touches amounts.
func RecomputePaymentStatus(
	payable, paid decimal.Decimal,
	dueDate *time.Time,
	today time.Time,
	tolerance decimal.Decimal,
	graceDays int,
) string {
	if paid.GreaterThan(decimal.Zero) && payable.Sub(paid).Abs().LessThanOrEqual(tolerance) {
		return PaymentStatusPaid
	}
	if payable.GreaterThan(decimal.Zero) && paid.GreaterThanOrEqual(payable) {
		return PaymentStatusPaid
	}

	status := PaymentStatusUnpaid
	if paid.GreaterThan(decimal.Zero) {
		status = PaymentStatusPartial
	}

	if dueDate != nil {
		effectiveDue := dueDate.AddDate(0, 0, graceDays)
		if today.After(effectiveDue) {
			return PaymentStatusOverdue
		}
	}
	return status
}

// Bill aggregates one or more fees for a billing cycle. Its balance derives
// from payments recorded on the bill itself, not on constituent fees.
type Bill struct {
	frame.BaseModel

	BillNumber   string `gorm:"type:varchar(20);uniqueIndex"`
	StudentID    string `gorm:"type:varchar(50);index"`
	AcademicYear string `gorm:"type:varchar(9)"`
	Term         int

	IssueDate time.Time
	DueDate   *time.Time `gorm:"index"`

	TotalAmount decimal.Decimal `gorm:"type:numeric"`
	AmountPaid  decimal.Decimal `gorm:"type:numeric"`
	Balance     decimal.Decimal `gorm:"type:numeric"`

	PaymentStatus    string `gorm:"type:varchar(20);index"`
	GenerationStatus string `gorm:"type:varchar(20);index"`

	RecordedBy string `gorm:"type:varchar(50)"`
	Notes      string `gorm:"type:text"`
}

func (b *Bill) CanAcceptPayments() bool {
	return b.GenerationStatus != GenerationStatusLocked &&
		b.GenerationStatus != GenerationStatusCancelled
}

// BillItem is a single fee line on a bill.
type BillItem struct {
	frame.BaseModel

	BillID      string          `gorm:"type:varchar(50);index"`
	Category    string          `gorm:"type:varchar(100)"`
	Amount      decimal.Decimal `gorm:"type:numeric"`
	Description string          `gorm:"type:text"`
}

// Payment is a fee-scoped payment. Immutable once IsConfirmed is set; voiding
// deletes the row and recomputes the parent from the remaining set.
type Payment struct {
	frame.BaseModel

	FeeID       string          `gorm:"type:varchar(50);index"`
	Amount      decimal.Decimal `gorm:"type:numeric"`
	PaymentMode string          `gorm:"type:varchar(20)"`
	PaymentDate time.Time       `gorm:"index"`

	// Gateway transaction id or manual bank reference, unique when present.
	Reference     string `gorm:"type:varchar(100);uniqueIndex:idx_payments_reference,where:reference <> ''"`
	ReceiptNumber string `gorm:"type:varchar(30)"`

	RecordedBy  string `gorm:"type:varchar(50)"`
	IsConfirmed bool   `gorm:"index"`
	ConfirmedBy string `gorm:"type:varchar(50)"`
	ConfirmedAt *time.Time
	Notes       string `gorm:"type:text"`
}

// BillPayment mirrors Payment for bill targets.
type BillPayment struct {
	frame.BaseModel

	BillID      string          `gorm:"type:varchar(50);index"`
	Amount      decimal.Decimal `gorm:"type:numeric"`
	PaymentMode string          `gorm:"type:varchar(20)"`
	PaymentDate time.Time       `gorm:"index"`

	Reference     string `gorm:"type:varchar(100);uniqueIndex:idx_bill_payments_reference,where:reference <> ''"`
	ReceiptNumber string `gorm:"type:varchar(30)"`

	RecordedBy  string `gorm:"type:varchar(50)"`
	IsConfirmed bool   `gorm:"index"`
	ConfirmedBy string `gorm:"type:varchar(50)"`
	ConfirmedAt *time.Time
	Notes       string `gorm:"type:text"`
}

// Credit records an overpayment held for future application. Redemption is a
// consumer concern; this service only creates and lists credits.
type Credit struct {
	frame.BaseModel

	StudentID    string          `gorm:"type:varchar(50);index"`
	SourceFeeID  string          `gorm:"type:varchar(50);index"`
	SourceBillID string          `gorm:"type:varchar(50)"`
	Amount       decimal.Decimal `gorm:"type:numeric"`
	Reason       string          `gorm:"type:varchar(200)"`
	IsUsed       bool            `gorm:"index"`
	UsedAt       *time.Time
	UsedForFeeID string `gorm:"type:varchar(50)"`
}

// PendingPayment bridges a gateway-initiated charge and the confirmed
// payment it becomes. The pending -> completed transition is the
// at-most-once gate for confirmation processing.
type PendingPayment struct {
	frame.BaseModel

	Reference  string `gorm:"type:varchar(100);uniqueIndex"`
	TargetType string `gorm:"type:varchar(10)"`
	TargetID   string `gorm:"type:varchar(50);index"`

	Amount   decimal.Decimal `gorm:"type:numeric"`
	Currency string          `gorm:"type:varchar(10)"`
	Gateway  string          `gorm:"type:varchar(20)"`

	Status      string `gorm:"type:varchar(20);index"`
	InitiatedBy string `gorm:"type:varchar(50)"`
	Metadata    datatypes.JSONMap
	CompletedAt *time.Time
}

// BankStatement is the month-end closing balance captured from the bank,
// the independent figure monthly reconciliation checks the books against.
type BankStatement struct {
	frame.BaseModel

	Year           int             `gorm:"uniqueIndex:idx_bank_statement_month"`
	Month          int             `gorm:"uniqueIndex:idx_bank_statement_month"`
	ClosingBalance decimal.Decimal `gorm:"type:numeric"`
	RecordedBy     string          `gorm:"type:varchar(50)"`
}

// Expense feeds the monthly book balance (payments - expenses).
type Expense struct {
	frame.BaseModel

	Description string          `gorm:"type:varchar(200)"`
	Category    string          `gorm:"type:varchar(100)"`
	Amount      decimal.Decimal `gorm:"type:numeric"`
	Date        time.Time       `gorm:"index"`
	RecordedBy  string          `gorm:"type:varchar(50)"`
}

// AuditRecord is append-only. Normal flows never update or delete rows;
// retention is a separate policy.
type AuditRecord struct {
	frame.BaseModel

	Action    string `gorm:"type:varchar(30);index:idx_audit_action_time"`
	ModelName string `gorm:"type:varchar(100);index:idx_audit_object"`
	ObjectID  string `gorm:"type:varchar(100);index:idx_audit_object"`
	// Empty for system actions.
	UserID string `gorm:"type:varchar(50);index:idx_audit_user_time"`

	BeforeState datatypes.JSON
	AfterState  datatypes.JSON
	Changes     datatypes.JSON
	Notes       string `gorm:"type:text"`
}

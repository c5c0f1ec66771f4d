package business

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edusuite/service-fees/config"
	"github.com/edusuite/service-fees/service/models"
	"github.com/edusuite/service-fees/service/repository"
	"github.com/edusuite/service-fees/service/utility"
	"github.com/pitabwire/frame"
)

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"

	ReportStatusBalanced      = "balanced"
	ReportStatusDiscrepancy   = "discrepancy"
	MonthlyStatusReconciled   = "reconciled"
	MonthlyStatusUnreconciled = "unreconciled"
)

// Discrepancy flags one suspicious observation in a day's takings.
type Discrepancy struct {
	Type       string   `json:"type"`
	Severity   string   `json:"severity"`
	Message    string   `json:"message"`
	PaymentIDs []string `json:"payment_ids,omitempty"`
}

// MethodBreakdown is one payment method's share of a day's collections.
type MethodBreakdown struct {
	Method     string          `json:"method"`
	Count      int             `json:"count"`
	Total      decimal.Decimal `json:"total"`
	Percentage decimal.Decimal `json:"percentage"`
}

// DailyReport summarises one collection day.
type DailyReport struct {
	Date            time.Time         `json:"date"`
	TotalCollected  decimal.Decimal   `json:"total_collected"`
	CashTotal       decimal.Decimal   `json:"cash_total"`
	ElectronicTotal decimal.Decimal   `json:"electronic_total"`
	PaymentCount    int               `json:"payment_count"`
	Breakdown       []MethodBreakdown `json:"breakdown"`
	Discrepancies   []Discrepancy     `json:"discrepancies"`
	Status          string            `json:"status"`
}

// MonthlyReport compares the book balance against the bank statement.
type MonthlyReport struct {
	Year          int             `json:"year"`
	Month         time.Month      `json:"month"`
	TotalReceived decimal.Decimal `json:"total_received"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	BookBalance   decimal.Decimal `json:"book_balance"`
	BankBalance   decimal.Decimal `json:"bank_balance"`
	Difference    decimal.Decimal `json:"difference"`
	Outstanding   []Discrepancy   `json:"outstanding,omitempty"`
	Status        string          `json:"status"`
}

// Notifier delivers reconciliation alerts out of band.
type Notifier interface {
	Alert(ctx context.Context, severity, message string) error
}

// AuditRecorder persists audit records for flows that run outside a ledger
// transaction, typically by handing them to the event bus.
type AuditRecorder interface {
	Record(ctx context.Context, record *models.AuditRecord) error
}

// BankStatementSource supplies the independent month-end figure the book
// balance is checked against.
type BankStatementSource interface {
	ClosingBalance(ctx context.Context, year int, month time.Month) (decimal.Decimal, error)
}

type ReconciliationBusiness interface {
	DailyReconciliation(ctx context.Context, date time.Time) (*DailyReport, error)
	MonthlyReconciliation(ctx context.Context, year int, month time.Month) (*MonthlyReport, error)
}

func NewReconciliationBusiness(
	_ context.Context,
	service *frame.Service,
	cfg *config.FeesConfig,
	repos *repository.Repositories,
	notifier Notifier,
	audits AuditRecorder,
	bank BankStatementSource,
) ReconciliationBusiness {
	threshold, err := decimal.NewFromString(cfg.LargeCashThreshold)
	if err != nil {
		threshold = decimal.NewFromInt(1000)
	}
	return &reconciliationBusiness{
		service:       service,
		repos:         repos,
		notifier:      notifier,
		audits:        audits,
		bank:          bank,
		cashThreshold: threshold,
	}
}

type reconciliationBusiness struct {
	service       *frame.Service
	repos         *repository.Repositories
	notifier      Notifier
	audits        AuditRecorder
	bank          BankStatementSource
	cashThreshold decimal.Decimal
}

// reconRecord is the common shape of fee and bill payments, so both feeds
// run through the same detectors.
type reconRecord struct {
	ID        string
	TargetID  string
	Amount    decimal.Decimal
	Mode      string
	Confirmed bool
	Receipt   string
}

func (rb *reconciliationBusiness) collectDay(ctx context.Context, date time.Time) ([]reconRecord, error) {
	feePayments, err := rb.repos.Payments.ListByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	billPayments, err := rb.repos.BillPayments.ListByDate(ctx, date)
	if err != nil {
		return nil, err
	}

	records := make([]reconRecord, 0, len(feePayments)+len(billPayments))
	for _, p := range feePayments {
		records = append(records, reconRecord{
			ID: p.GetID(), TargetID: p.FeeID, Amount: p.Amount,
			Mode: p.PaymentMode, Confirmed: p.IsConfirmed, Receipt: p.ReceiptNumber,
		})
	}
	for _, p := range billPayments {
		records = append(records, reconRecord{
			ID: p.GetID(), TargetID: p.BillID, Amount: p.Amount,
			Mode: p.PaymentMode, Confirmed: p.IsConfirmed, Receipt: p.ReceiptNumber,
		})
	}
	return records, nil
}

func (rb *reconciliationBusiness) DailyReconciliation(ctx context.Context, date time.Time) (*DailyReport, error) {
	logger := rb.service.Log(ctx).WithField("date", date.Format("2006-01-02"))

	records, err := rb.collectDay(ctx, date)
	if err != nil {
		return nil, err
	}

	report := &DailyReport{
		Date:         date,
		PaymentCount: len(records),
		Status:       ReportStatusBalanced,
	}

	byMethod := map[string]*MethodBreakdown{}
	for _, rec := range records {
		if !rec.Confirmed {
			continue
		}
		report.TotalCollected = report.TotalCollected.Add(rec.Amount)
		if rec.Mode == models.PaymentModeCash {
			report.CashTotal = report.CashTotal.Add(rec.Amount)
		} else {
			report.ElectronicTotal = report.ElectronicTotal.Add(rec.Amount)
		}
		entry, ok := byMethod[rec.Mode]
		if !ok {
			entry = &MethodBreakdown{Method: rec.Mode}
			byMethod[rec.Mode] = entry
		}
		entry.Count++
		entry.Total = entry.Total.Add(rec.Amount)
	}

	for _, entry := range byMethod {
		if report.TotalCollected.GreaterThan(decimal.Zero) {
			entry.Percentage = entry.Total.
				Div(report.TotalCollected).
				Mul(decimal.NewFromInt(100)).
				Round(utility.DecimalPlaces)
		}
		report.Breakdown = append(report.Breakdown, *entry)
	}
	sort.Slice(report.Breakdown, func(i, j int) bool {
		if report.Breakdown[i].Total.Equal(report.Breakdown[j].Total) {
			return report.Breakdown[i].Method < report.Breakdown[j].Method
		}
		return report.Breakdown[i].Total.GreaterThan(report.Breakdown[j].Total)
	})

	report.Discrepancies = rb.detect(records)
	if len(report.Discrepancies) > 0 {
		report.Status = ReportStatusDiscrepancy
	}

	record := newAuditRecord(AuditActionReconciliation, "DailyReport",
		date.Format("2006-01-02"), "", nil, report,
		fmt.Sprintf("daily reconciliation: %d payments, %d discrepancies",
			report.PaymentCount, len(report.Discrepancies)))
	if err = rb.audits.Record(ctx, record); err != nil {
		return nil, err
	}

	for _, d := range report.Discrepancies {
		if d.Severity != SeverityHigh || rb.notifier == nil {
			continue
		}
		if alertErr := rb.notifier.Alert(ctx, d.Severity, d.Message); alertErr != nil {
			logger.WithError(alertErr).Warn("could not deliver reconciliation alert")
		}
	}

	return report, nil
}

func (rb *reconciliationBusiness) detect(records []reconRecord) []Discrepancy {
	var found []Discrepancy

	type dupKey struct {
		targetID string
		amount   string
	}
	duplicates := map[dupKey][]string{}

	for _, rec := range records {
		if !rec.Confirmed {
			found = append(found, Discrepancy{
				Type:       "unconfirmed_payment",
				Severity:   SeverityMedium,
				Message:    fmt.Sprintf("payment %s of %s is awaiting confirmation", rec.Receipt, utility.FormatAmount(rec.Amount)),
				PaymentIDs: []string{rec.ID},
			})
		}
		if rec.Mode == models.PaymentModeCash && rec.Amount.GreaterThanOrEqual(rb.cashThreshold) {
			found = append(found, Discrepancy{
				Type:       "large_cash_payment",
				Severity:   SeverityLow,
				Message:    fmt.Sprintf("cash payment %s of %s exceeds the review threshold", rec.Receipt, utility.FormatAmount(rec.Amount)),
				PaymentIDs: []string{rec.ID},
			})
		}
		// Only confirmed payments can duplicate each other; a pending
		// cheque alongside a confirmed payment of the same amount is not
		// a double entry.
		if rec.Confirmed {
			key := dupKey{targetID: rec.TargetID, amount: rec.Amount.StringFixed(utility.DecimalPlaces)}
			duplicates[key] = append(duplicates[key], rec.ID)
		}
	}

	keys := make([]dupKey, 0, len(duplicates))
	for key := range duplicates {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].targetID == keys[j].targetID {
			return keys[i].amount < keys[j].amount
		}
		return keys[i].targetID < keys[j].targetID
	})

	for _, key := range keys {
		ids := duplicates[key]
		if len(ids) < 2 {
			continue
		}
		found = append(found, Discrepancy{
			Type:     "possible_duplicate",
			Severity: SeverityHigh,
			Message: fmt.Sprintf("%d payments of %s against target %s on the same day",
				len(ids), key.amount, key.targetID),
			PaymentIDs: ids,
		})
	}

	return found
}

func (rb *reconciliationBusiness) MonthlyReconciliation(
	ctx context.Context, year int, month time.Month,
) (*MonthlyReport, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	feePayments, err := rb.repos.Payments.ListByPeriod(ctx, from, to)
	if err != nil {
		return nil, err
	}
	billPayments, err := rb.repos.BillPayments.ListByPeriod(ctx, from, to)
	if err != nil {
		return nil, err
	}

	report := &MonthlyReport{Year: year, Month: month}

	for _, p := range feePayments {
		if !p.IsConfirmed {
			report.Outstanding = append(report.Outstanding, Discrepancy{
				Type:       "unconfirmed_payment",
				Severity:   SeverityMedium,
				Message:    fmt.Sprintf("payment %s of %s is awaiting confirmation", p.ReceiptNumber, utility.FormatAmount(p.Amount)),
				PaymentIDs: []string{p.GetID()},
			})
			continue
		}
		report.TotalReceived = report.TotalReceived.Add(p.Amount)
	}
	for _, p := range billPayments {
		if !p.IsConfirmed {
			report.Outstanding = append(report.Outstanding, Discrepancy{
				Type:       "unconfirmed_payment",
				Severity:   SeverityMedium,
				Message:    fmt.Sprintf("payment %s of %s is awaiting confirmation", p.ReceiptNumber, utility.FormatAmount(p.Amount)),
				PaymentIDs: []string{p.GetID()},
			})
			continue
		}
		report.TotalReceived = report.TotalReceived.Add(p.Amount)
	}

	report.TotalExpenses, err = rb.repos.Expenses.SumByPeriod(ctx, from, to)
	if err != nil {
		return nil, err
	}
	report.BookBalance = report.TotalReceived.Sub(report.TotalExpenses)

	report.BankBalance, err = rb.bank.ClosingBalance(ctx, year, month)
	if err != nil {
		return nil, err
	}
	report.Difference = report.BookBalance.Sub(report.BankBalance)

	if report.Difference.Abs().LessThanOrEqual(utility.DefaultTolerance()) && len(report.Outstanding) == 0 {
		report.Status = MonthlyStatusReconciled
	} else {
		report.Status = MonthlyStatusUnreconciled
	}

	objectID := fmt.Sprintf("%04d-%02d", year, month)
	record := newAuditRecord(AuditActionReconciliation, "MonthlyReport",
		objectID, "", nil, report,
		fmt.Sprintf("monthly reconciliation: book %s vs bank %s",
			report.BookBalance.StringFixed(2), report.BankBalance.StringFixed(2)))
	if err = rb.audits.Record(ctx, record); err != nil {
		return nil, err
	}

	return report, nil
}

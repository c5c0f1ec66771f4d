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

// PaymentBusiness is the recording engine. Every mutation recomputes the
// parent's amount_paid from the full confirmed-payment set inside one
// transaction, so the resulting balance is a function of the payment set
// and not of operation order.
type PaymentBusiness interface {
	RecordFeePayment(ctx context.Context, req RecordPaymentRequest) (*models.Payment, error)
	RecordBillPayment(ctx context.Context, req RecordPaymentRequest) (*models.BillPayment, error)
	VoidFeePayment(ctx context.Context, paymentID, user string) error
	VoidBillPayment(ctx context.Context, paymentID, user string) error
	ConfirmManualPayment(ctx context.Context, paymentID, user string) error
}

type RecordPaymentRequest struct {
	TargetID    string
	Amount      decimal.Decimal
	PaymentMode string
	PaymentDate time.Time
	Reference   string
	RecordedBy  string
	Notes       string
}

type PaymentOptions struct {
	Tolerance decimal.Decimal
	GraceDays int
}

func NewPaymentBusiness(
	_ context.Context,
	service *frame.Service,
	repos *repository.Repositories,
	opts PaymentOptions,
) PaymentBusiness {
	if opts.Tolerance.IsZero() {
		opts.Tolerance = utility.DefaultTolerance()
	}
	return &paymentBusiness{service: service, repos: repos, opts: opts}
}

type paymentBusiness struct {
	service *frame.Service
	repos   *repository.Repositories
	opts    PaymentOptions
}

// Cheques and bank transfers wait for manual confirmation against the bank
// record; everything else is confirmed on entry.
func modeAutoConfirms(mode string) bool {
	switch mode {
	case models.PaymentModeCheque, models.PaymentModeBankTransfer:
		return false
	default:
		return true
	}
}

func (pb *paymentBusiness) validateRequest(req RecordPaymentRequest) error {
	if !req.Amount.GreaterThan(decimal.Zero) {
		return ErrInvalidAmount
	}
	if req.PaymentDate.IsZero() {
		return ErrInvalidDate
	}
	endOfToday := time.Now().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	if !req.PaymentDate.Before(endOfToday) {
		return ErrFutureDate
	}
	return nil
}

func (pb *paymentBusiness) RecordFeePayment(ctx context.Context, req RecordPaymentRequest) (*models.Payment, error) {
	if err := pb.validateRequest(req); err != nil {
		return nil, err
	}
	if err := pb.checkFeeReference(ctx, req.Reference); err != nil {
		return nil, err
	}

	logger := pb.service.Log(ctx).WithField("fee_id", req.TargetID).WithField("amount", req.Amount)

	payment := &models.Payment{
		FeeID:         req.TargetID,
		Amount:        utility.RoundAmount(req.Amount),
		PaymentMode:   req.PaymentMode,
		PaymentDate:   req.PaymentDate,
		Reference:     req.Reference,
		ReceiptNumber: generateReceiptNumber("FEE"),
		RecordedBy:    req.RecordedBy,
		Notes:         req.Notes,
	}
	if modeAutoConfirms(req.PaymentMode) {
		now := time.Now()
		payment.IsConfirmed = true
		payment.ConfirmedBy = req.RecordedBy
		payment.ConfirmedAt = &now
	}

	err := pb.repos.Tx.InTransaction(ctx, func(ctx context.Context) error {
		fee, err := pb.repos.Fees.GetForUpdate(ctx, req.TargetID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTargetNotFound
		}
		if err != nil {
			return err
		}
		if !fee.CanAcceptPayments() {
			return ErrTargetLocked
		}

		payment.GenID(ctx)
		if err = pb.repos.Payments.Save(ctx, payment); err != nil {
			return err
		}

		return pb.recomputeFee(ctx, fee, AuditActionPayment, req.RecordedBy,
			fmt.Sprintf("payment of %s recorded, receipt %s", utility.FormatAmount(payment.Amount), payment.ReceiptNumber))
	})
	if err != nil {
		logger.WithError(err).Warn("could not record fee payment")
		return nil, err
	}
	return payment, nil
}

func (pb *paymentBusiness) VoidFeePayment(ctx context.Context, paymentID, user string) error {
	logger := pb.service.Log(ctx).WithField("payment_id", paymentID)

	err := pb.repos.Tx.InTransaction(ctx, func(ctx context.Context) error {
		payment, err := pb.repos.Payments.GetByID(ctx, paymentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTargetNotFound
		}
		if err != nil {
			return err
		}

		fee, err := pb.repos.Fees.GetForUpdate(ctx, payment.FeeID)
		if err != nil {
			return err
		}

		if err = pb.repos.Payments.Delete(ctx, paymentID); err != nil {
			return err
		}

		return pb.recomputeFee(ctx, fee, AuditActionVoid, user,
			fmt.Sprintf("payment %s of %s voided", payment.ReceiptNumber, utility.FormatAmount(payment.Amount)))
	})
	if err != nil {
		logger.WithError(err).Warn("could not void fee payment")
	}
	return err
}

// recomputeFee derives amount_paid, balance, credit and status from the
// confirmed payment set. Must run with the fee row locked.
func (pb *paymentBusiness) recomputeFee(ctx context.Context, fee *models.Fee, action, user, notes string) error {
	before := feeSnapshot(fee)

	total, err := pb.repos.Payments.SumConfirmedByFee(ctx, fee.GetID())
	if err != nil {
		return err
	}
	total = utility.RoundAmount(total)

	if total.GreaterThan(fee.AmountPayable) {
		excess := total.Sub(fee.AmountPayable)
		if err = pb.upsertFeeCredit(ctx, fee, excess); err != nil {
			return err
		}
		total = fee.AmountPayable
	} else if err = pb.clearFeeCredit(ctx, fee); err != nil {
		return err
	}

	fee.AmountPaid = total
	fee.Balance = fee.AmountPayable.Sub(total)
	if fee.Balance.IsNegative() {
		return &IntegrityError{Message: fmt.Sprintf(
			"fee %s balance is negative after recompute: %s", fee.GetID(), fee.Balance.String())}
	}

	fee.PaymentStatus = models.RecomputePaymentStatus(
		fee.AmountPayable, fee.AmountPaid, fee.DueDate, time.Now(), pb.opts.Tolerance, pb.opts.GraceDays)

	if err = pb.repos.Fees.Save(ctx, fee); err != nil {
		return err
	}
	return appendAudit(ctx, pb.repos.Audits, action, "Fee", fee.GetID(), user,
		before, feeSnapshot(fee), notes)
}

func (pb *paymentBusiness) upsertFeeCredit(ctx context.Context, fee *models.Fee, excess decimal.Decimal) error {
	credit, err := pb.repos.Credits.GetOpenBySourceFee(ctx, fee.GetID())
	if err != nil {
		return err
	}
	if credit == nil {
		credit = &models.Credit{
			StudentID:   fee.StudentID,
			SourceFeeID: fee.GetID(),
			Reason:      "Overpayment",
		}
		credit.GenID(ctx)
	}
	credit.Amount = utility.RoundAmount(excess)
	return pb.repos.Credits.Save(ctx, credit)
}

// clearFeeCredit removes an open overpayment credit once the confirmed
// payment set no longer exceeds the payable amount.
func (pb *paymentBusiness) clearFeeCredit(ctx context.Context, fee *models.Fee) error {
	credit, err := pb.repos.Credits.GetOpenBySourceFee(ctx, fee.GetID())
	if err != nil {
		return err
	}
	if credit == nil {
		return nil
	}
	return pb.repos.Credits.Delete(ctx, credit.GetID())
}

func (pb *paymentBusiness) RecordBillPayment(ctx context.Context, req RecordPaymentRequest) (*models.BillPayment, error) {
	if err := pb.validateRequest(req); err != nil {
		return nil, err
	}
	if err := pb.checkBillReference(ctx, req.Reference); err != nil {
		return nil, err
	}

	logger := pb.service.Log(ctx).WithField("bill_id", req.TargetID).WithField("amount", req.Amount)

	payment := &models.BillPayment{
		BillID:        req.TargetID,
		Amount:        utility.RoundAmount(req.Amount),
		PaymentMode:   req.PaymentMode,
		PaymentDate:   req.PaymentDate,
		Reference:     req.Reference,
		ReceiptNumber: generateReceiptNumber("BILL"),
		RecordedBy:    req.RecordedBy,
		Notes:         req.Notes,
	}
	if modeAutoConfirms(req.PaymentMode) {
		now := time.Now()
		payment.IsConfirmed = true
		payment.ConfirmedBy = req.RecordedBy
		payment.ConfirmedAt = &now
	}

	err := pb.repos.Tx.InTransaction(ctx, func(ctx context.Context) error {
		bill, err := pb.repos.Bills.GetForUpdate(ctx, req.TargetID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTargetNotFound
		}
		if err != nil {
			return err
		}
		if !bill.CanAcceptPayments() {
			return ErrTargetLocked
		}

		payment.GenID(ctx)
		if err = pb.repos.BillPayments.Save(ctx, payment); err != nil {
			return err
		}

		return pb.recomputeBill(ctx, bill, AuditActionPayment, req.RecordedBy,
			fmt.Sprintf("payment of %s recorded, receipt %s", utility.FormatAmount(payment.Amount), payment.ReceiptNumber))
	})
	if err != nil {
		logger.WithError(err).Warn("could not record bill payment")
		return nil, err
	}
	return payment, nil
}

func (pb *paymentBusiness) VoidBillPayment(ctx context.Context, paymentID, user string) error {
	return pb.repos.Tx.InTransaction(ctx, func(ctx context.Context) error {
		payment, err := pb.repos.BillPayments.GetByID(ctx, paymentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTargetNotFound
		}
		if err != nil {
			return err
		}

		bill, err := pb.repos.Bills.GetForUpdate(ctx, payment.BillID)
		if err != nil {
			return err
		}

		if err = pb.repos.BillPayments.Delete(ctx, paymentID); err != nil {
			return err
		}

		return pb.recomputeBill(ctx, bill, AuditActionVoid, user,
			fmt.Sprintf("payment %s of %s voided", payment.ReceiptNumber, utility.FormatAmount(payment.Amount)))
	})
}

func (pb *paymentBusiness) recomputeBill(ctx context.Context, bill *models.Bill, action, user, notes string) error {
	before := billSnapshot(bill)

	total, err := pb.repos.BillPayments.SumConfirmedByBill(ctx, bill.GetID())
	if err != nil {
		return err
	}
	total = utility.RoundAmount(total)

	if total.GreaterThan(bill.TotalAmount) {
		excess := total.Sub(bill.TotalAmount)
		if err = pb.upsertBillCredit(ctx, bill, excess); err != nil {
			return err
		}
		total = bill.TotalAmount
	} else if err = pb.clearBillCredit(ctx, bill); err != nil {
		return err
	}

	bill.AmountPaid = total
	bill.Balance = bill.TotalAmount.Sub(total)
	if bill.Balance.IsNegative() {
		return &IntegrityError{Message: fmt.Sprintf(
			"bill %s balance is negative after recompute: %s", bill.GetID(), bill.Balance.String())}
	}

	bill.PaymentStatus = models.RecomputePaymentStatus(
		bill.TotalAmount, bill.AmountPaid, bill.DueDate, time.Now(), pb.opts.Tolerance, pb.opts.GraceDays)

	if err = pb.repos.Bills.Save(ctx, bill); err != nil {
		return err
	}
	return appendAudit(ctx, pb.repos.Audits, action, "Bill", bill.GetID(), user,
		before, billSnapshot(bill), notes)
}

func (pb *paymentBusiness) upsertBillCredit(ctx context.Context, bill *models.Bill, excess decimal.Decimal) error {
	credit, err := pb.repos.Credits.GetOpenBySourceBill(ctx, bill.GetID())
	if err != nil {
		return err
	}
	if credit == nil {
		credit = &models.Credit{
			StudentID:    bill.StudentID,
			SourceBillID: bill.GetID(),
			Reason:       "Overpayment",
		}
		credit.GenID(ctx)
	}
	credit.Amount = utility.RoundAmount(excess)
	return pb.repos.Credits.Save(ctx, credit)
}

func (pb *paymentBusiness) clearBillCredit(ctx context.Context, bill *models.Bill) error {
	credit, err := pb.repos.Credits.GetOpenBySourceBill(ctx, bill.GetID())
	if err != nil {
		return err
	}
	if credit == nil {
		return nil
	}
	return pb.repos.Credits.Delete(ctx, credit.GetID())
}

// ConfirmManualPayment confirms a cheque or bank-transfer payment once it
// clears, pulling it into the confirmed set and recomputing the fee.
func (pb *paymentBusiness) ConfirmManualPayment(ctx context.Context, paymentID, user string) error {
	return pb.repos.Tx.InTransaction(ctx, func(ctx context.Context) error {
		payment, err := pb.repos.Payments.GetByID(ctx, paymentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTargetNotFound
		}
		if err != nil {
			return err
		}
		if payment.IsConfirmed {
			return ErrPaymentConfirmed
		}

		fee, err := pb.repos.Fees.GetForUpdate(ctx, payment.FeeID)
		if err != nil {
			return err
		}

		now := time.Now()
		payment.IsConfirmed = true
		payment.ConfirmedBy = user
		payment.ConfirmedAt = &now
		if err = pb.repos.Payments.Save(ctx, payment); err != nil {
			return err
		}

		return pb.recomputeFee(ctx, fee, AuditActionUpdate, user,
			fmt.Sprintf("payment %s confirmed", payment.ReceiptNumber))
	})
}

func (pb *paymentBusiness) checkFeeReference(ctx context.Context, reference string) error {
	if reference == "" {
		return nil
	}
	_, err := pb.repos.Payments.GetByReference(ctx, reference)
	if err == nil {
		return ErrDuplicateReference
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

func (pb *paymentBusiness) checkBillReference(ctx context.Context, reference string) error {
	if reference == "" {
		return nil
	}
	_, err := pb.repos.BillPayments.GetByReference(ctx, reference)
	if err == nil {
		return ErrDuplicateReference
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// generateReceiptNumber creates a receipt reference in the form
// PREFIX-20060102150405-000123.
func generateReceiptNumber(prefix string) string {
	now := time.Now()
	return fmt.Sprintf("%s-%s-%06d", prefix, now.Format("20060102150405"), now.UnixNano()%1000000)
}

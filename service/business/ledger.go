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
	"github.com/pitabwire/frame"
)

// LedgerBusiness owns fee and bill lifecycle: creation, generation-status
// transitions and reads. Payment recording lives in PaymentBusiness.
type LedgerBusiness interface {
	CreateFee(ctx context.Context, fee *models.Fee, user string) (*models.Fee, error)
	GenerateFee(ctx context.Context, feeID string, dueDate time.Time, user string) error
	VerifyFee(ctx context.Context, feeID string, user string) error
	LockFee(ctx context.Context, feeID string, user string) error
	CancelFee(ctx context.Context, feeID string, user string) error
	ReinstateFee(ctx context.Context, feeID string, user string) error

	CreateBill(ctx context.Context, bill *models.Bill, items []*models.BillItem, user string) (*models.Bill, error)

	GetFee(ctx context.Context, feeID string) (*models.Fee, error)
	GetBill(ctx context.Context, billID string) (*models.Bill, error)
	ListStudentFees(ctx context.Context, studentID string) ([]*models.Fee, error)
	ListStudentCredits(ctx context.Context, studentID string) ([]*models.Credit, error)
}

func NewLedgerBusiness(_ context.Context, service *frame.Service, repos *repository.Repositories) LedgerBusiness {
	return &ledgerBusiness{service: service, repos: repos}
}

type ledgerBusiness struct {
	service *frame.Service
	repos   *repository.Repositories
}

// Allowed generation-status transitions. Locked is terminal; cancelled is
// reversible only back to draft.
var feeTransitions = map[string][]string{
	models.GenerationStatusDraft:     {models.GenerationStatusGenerated, models.GenerationStatusCancelled},
	models.GenerationStatusGenerated: {models.GenerationStatusVerified, models.GenerationStatusCancelled},
	models.GenerationStatusVerified:  {models.GenerationStatusLocked, models.GenerationStatusCancelled},
	models.GenerationStatusLocked:    {},
	models.GenerationStatusCancelled: {models.GenerationStatusDraft},
}

func transitionAllowed(from, to string) bool {
	for _, next := range feeTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type feeState struct {
	AmountPayable    string `json:"amount_payable"`
	AmountPaid       string `json:"amount_paid"`
	Balance          string `json:"balance"`
	PaymentStatus    string `json:"payment_status"`
	GenerationStatus string `json:"generation_status"`
}

func feeSnapshot(f *models.Fee) feeState {
	return feeState{
		AmountPayable:    f.AmountPayable.StringFixed(2),
		AmountPaid:       f.AmountPaid.StringFixed(2),
		Balance:          f.Balance.StringFixed(2),
		PaymentStatus:    f.PaymentStatus,
		GenerationStatus: f.GenerationStatus,
	}
}

type billState struct {
	TotalAmount      string `json:"total_amount"`
	AmountPaid       string `json:"amount_paid"`
	Balance          string `json:"balance"`
	PaymentStatus    string `json:"payment_status"`
	GenerationStatus string `json:"generation_status"`
}

func billSnapshot(b *models.Bill) billState {
	return billState{
		TotalAmount:      b.TotalAmount.StringFixed(2),
		AmountPaid:       b.AmountPaid.StringFixed(2),
		Balance:          b.Balance.StringFixed(2),
		PaymentStatus:    b.PaymentStatus,
		GenerationStatus: b.GenerationStatus,
	}
}

func (lb *ledgerBusiness) CreateFee(ctx context.Context, fee *models.Fee, user string) (*models.Fee, error) {
	if !fee.AmountPayable.GreaterThan(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	fee.AmountPaid = decimal.Zero
	fee.Balance = fee.AmountPayable
	fee.PaymentStatus = models.PaymentStatusUnpaid
	fee.GenerationStatus = models.GenerationStatusDraft
	fee.RecordedBy = user
	if fee.GetID() == "" {
		fee.GenID(ctx)
	}

	err := lb.repos.Tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := lb.repos.Fees.Save(ctx, fee); err != nil {
			return err
		}
		return appendAudit(ctx, lb.repos.Audits, AuditActionCreate, "Fee", fee.GetID(), user,
			nil, feeSnapshot(fee), "fee created in draft")
	})
	if err != nil {
		return nil, err
	}
	return fee, nil
}

func (lb *ledgerBusiness) GenerateFee(ctx context.Context, feeID string, dueDate time.Time, user string) error {
	return lb.transitionFee(ctx, feeID, models.GenerationStatusGenerated, user, func(fee *models.Fee) error {
		if dueDate.Before(time.Now().Truncate(24 * time.Hour)) {
			return &ValidationError{Code: "invalid_due_date", Message: "due date cannot be in the past for new fees"}
		}
		fee.DueDate = &dueDate
		return nil
	})
}

func (lb *ledgerBusiness) VerifyFee(ctx context.Context, feeID, user string) error {
	return lb.transitionFee(ctx, feeID, models.GenerationStatusVerified, user, nil)
}

func (lb *ledgerBusiness) LockFee(ctx context.Context, feeID, user string) error {
	return lb.transitionFee(ctx, feeID, models.GenerationStatusLocked, user, nil)
}

func (lb *ledgerBusiness) CancelFee(ctx context.Context, feeID, user string) error {
	return lb.transitionFee(ctx, feeID, models.GenerationStatusCancelled, user, nil)
}

func (lb *ledgerBusiness) ReinstateFee(ctx context.Context, feeID, user string) error {
	return lb.transitionFee(ctx, feeID, models.GenerationStatusDraft, user, nil)
}

func (lb *ledgerBusiness) transitionFee(
	ctx context.Context,
	feeID, target, user string,
	mutate func(fee *models.Fee) error,
) error {
	logger := lb.service.Log(ctx).WithField("fee_id", feeID).WithField("target_status", target)

	return lb.repos.Tx.InTransaction(ctx, func(ctx context.Context) error {
		fee, err := lb.repos.Fees.GetForUpdate(ctx, feeID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTargetNotFound
		}
		if err != nil {
			return err
		}

		if !transitionAllowed(fee.GenerationStatus, target) {
			logger.WithField("current_status", fee.GenerationStatus).Warn("transition refused")
			return ErrInvalidTransition
		}

		before := feeSnapshot(fee)
		if mutate != nil {
			if err = mutate(fee); err != nil {
				return err
			}
		}
		fee.GenerationStatus = target

		if err = lb.repos.Fees.Save(ctx, fee); err != nil {
			return err
		}
		return appendAudit(ctx, lb.repos.Audits, AuditActionUpdate, "Fee", fee.GetID(), user,
			before, feeSnapshot(fee), fmt.Sprintf("generation status %s -> %s", before.GenerationStatus, target))
	})
}

func (lb *ledgerBusiness) CreateBill(ctx context.Context, bill *models.Bill, items []*models.BillItem, user string) (*models.Bill, error) {
	total := decimal.Zero
	for _, item := range items {
		if !item.Amount.GreaterThan(decimal.Zero) {
			return nil, ErrInvalidAmount
		}
		total = total.Add(item.Amount)
	}
	if !total.GreaterThan(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	bill.TotalAmount = total
	bill.AmountPaid = decimal.Zero
	bill.Balance = total
	bill.PaymentStatus = models.PaymentStatusUnpaid
	bill.GenerationStatus = models.GenerationStatusGenerated
	bill.IssueDate = time.Now()
	bill.RecordedBy = user
	if bill.GetID() == "" {
		bill.GenID(ctx)
	}

	err := lb.repos.Tx.InTransaction(ctx, func(ctx context.Context) error {
		number, err := lb.nextBillNumber(ctx)
		if err != nil {
			return err
		}
		bill.BillNumber = number

		if err = lb.repos.Bills.Save(ctx, bill); err != nil {
			return err
		}
		for _, item := range items {
			item.BillID = bill.GetID()
			if item.GetID() == "" {
				item.GenID(ctx)
			}
			if err = lb.repos.Bills.SaveItem(ctx, item); err != nil {
				return err
			}
		}
		return appendAudit(ctx, lb.repos.Audits, AuditActionCreate, "Bill", bill.GetID(), user,
			nil, billSnapshot(bill), fmt.Sprintf("bill %s issued with %d items", bill.BillNumber, len(items)))
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}

func (lb *ledgerBusiness) nextBillNumber(ctx context.Context) (string, error) {
	prefix := fmt.Sprintf("BILL%d", time.Now().Year())
	last, err := lb.repos.Bills.LastBillNumber(ctx, prefix)
	if err != nil {
		return "", err
	}

	sequence := 1
	if last != "" && len(last) > len(prefix) {
		if _, scanErr := fmt.Sscanf(last[len(prefix):], "%d", &sequence); scanErr == nil {
			sequence++
		}
	}
	return fmt.Sprintf("%s%06d", prefix, sequence), nil
}

func (lb *ledgerBusiness) GetFee(ctx context.Context, feeID string) (*models.Fee, error) {
	fee, err := lb.repos.Fees.GetByID(ctx, feeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTargetNotFound
	}
	return fee, err
}

func (lb *ledgerBusiness) GetBill(ctx context.Context, billID string) (*models.Bill, error) {
	bill, err := lb.repos.Bills.GetByID(ctx, billID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTargetNotFound
	}
	return bill, err
}

func (lb *ledgerBusiness) ListStudentFees(ctx context.Context, studentID string) ([]*models.Fee, error) {
	return lb.repos.Fees.ListByStudent(ctx, studentID)
}

func (lb *ledgerBusiness) ListStudentCredits(ctx context.Context, studentID string) ([]*models.Credit, error) {
	return lb.repos.Credits.ListByStudent(ctx, studentID)
}

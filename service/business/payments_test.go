package business

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusuite/service-fees/service/models"
	"github.com/edusuite/service-fees/service/repository"
)

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}

func seedFee(t *testing.T, repos *repository.Repositories, payable string) *models.Fee {
	t.Helper()
	fee := &models.Fee{
		StudentID:        "student_001",
		Category:         "Tuition",
		AcademicYear:     "2025/2026",
		Term:             1,
		AmountPayable:    dec(t, payable),
		Balance:          dec(t, payable),
		PaymentStatus:    models.PaymentStatusUnpaid,
		GenerationStatus: models.GenerationStatusGenerated,
	}
	require.NoError(t, repos.Fees.Save(t.Context(), fee))
	return fee
}

func newPaymentEngine(repos *repository.Repositories) PaymentBusiness {
	ctx, srv := newTestService()
	return NewPaymentBusiness(ctx, srv, repos, PaymentOptions{})
}

func record(t *testing.T, pb PaymentBusiness, feeID, amount, mode string) *models.Payment {
	t.Helper()
	payment, err := pb.RecordFeePayment(t.Context(), RecordPaymentRequest{
		TargetID:    feeID,
		Amount:      dec(t, amount),
		PaymentMode: mode,
		PaymentDate: time.Now().AddDate(0, 0, -1),
		RecordedBy:  "bursar",
	})
	require.NoError(t, err)
	return payment
}

func TestRecordFeePaymentValidation(t *testing.T) {
	repos, _ := newTestRepositories()
	pb := newPaymentEngine(repos)
	fee := seedFee(t, repos, "100")

	t.Run("zero amount", func(t *testing.T) {
		_, err := pb.RecordFeePayment(t.Context(), RecordPaymentRequest{
			TargetID: fee.GetID(), Amount: decimal.Zero,
			PaymentMode: models.PaymentModeCash, PaymentDate: time.Now(),
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("negative amount", func(t *testing.T) {
		_, err := pb.RecordFeePayment(t.Context(), RecordPaymentRequest{
			TargetID: fee.GetID(), Amount: dec(t, "-10"),
			PaymentMode: models.PaymentModeCash, PaymentDate: time.Now(),
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("future date", func(t *testing.T) {
		_, err := pb.RecordFeePayment(t.Context(), RecordPaymentRequest{
			TargetID: fee.GetID(), Amount: dec(t, "10"),
			PaymentMode: models.PaymentModeCash, PaymentDate: time.Now().AddDate(0, 0, 2),
		})
		assert.ErrorIs(t, err, ErrFutureDate)
	})

	t.Run("missing target", func(t *testing.T) {
		_, err := pb.RecordFeePayment(t.Context(), RecordPaymentRequest{
			TargetID: "no_such_fee", Amount: dec(t, "10"),
			PaymentMode: models.PaymentModeCash, PaymentDate: time.Now(),
		})
		assert.ErrorIs(t, err, ErrTargetNotFound)
	})
}

func TestRecordFeePaymentAccumulates(t *testing.T) {
	repos, _ := newTestRepositories()
	pb := newPaymentEngine(repos)
	fee := seedFee(t, repos, "100")

	record(t, pb, fee.GetID(), "40", models.PaymentModeCash)
	record(t, pb, fee.GetID(), "35", models.PaymentModeMobileMoney)

	updated, err := repos.Fees.GetByID(t.Context(), fee.GetID())
	require.NoError(t, err)
	assert.True(t, updated.AmountPaid.Equal(dec(t, "75")))
	assert.True(t, updated.Balance.Equal(dec(t, "25")))
	assert.Equal(t, models.PaymentStatusPartial, updated.PaymentStatus)

	record(t, pb, fee.GetID(), "25", models.PaymentModeCash)

	updated, err = repos.Fees.GetByID(t.Context(), fee.GetID())
	require.NoError(t, err)
	assert.True(t, updated.AmountPaid.Equal(dec(t, "100")))
	assert.True(t, updated.Balance.IsZero())
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)
}

func TestRecordFeePaymentOverpaymentCreatesCredit(t *testing.T) {
	repos, _ := newTestRepositories()
	pb := newPaymentEngine(repos)
	fee := seedFee(t, repos, "100")

	record(t, pb, fee.GetID(), "120", models.PaymentModeCash)

	updated, err := repos.Fees.GetByID(t.Context(), fee.GetID())
	require.NoError(t, err)
	assert.True(t, updated.AmountPaid.Equal(dec(t, "100")), "paid clamps at payable, got %s", updated.AmountPaid)
	assert.True(t, updated.Balance.IsZero())
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)

	credit, err := repos.Credits.GetOpenBySourceFee(t.Context(), fee.GetID())
	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.True(t, credit.Amount.Equal(dec(t, "20")))
	assert.Equal(t, "student_001", credit.StudentID)
	assert.False(t, credit.IsUsed)
}

func TestRecordFeePaymentOverpaymentAcrossPayments(t *testing.T) {
	repos, _ := newTestRepositories()
	pb := newPaymentEngine(repos)
	fee := seedFee(t, repos, "100")

	record(t, pb, fee.GetID(), "40", models.PaymentModeCash)
	record(t, pb, fee.GetID(), "35", models.PaymentModeCash)
	record(t, pb, fee.GetID(), "30", models.PaymentModeCash)

	updated, err := repos.Fees.GetByID(t.Context(), fee.GetID())
	require.NoError(t, err)
	assert.True(t, updated.AmountPaid.Equal(dec(t, "100")))
	assert.True(t, updated.Balance.IsZero())

	credit, err := repos.Credits.GetOpenBySourceFee(t.Context(), fee.GetID())
	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.True(t, credit.Amount.Equal(dec(t, "5")))
}

func TestVoidOverpaymentRemovesCredit(t *testing.T) {
	repos, _ := newTestRepositories()
	pb := newPaymentEngine(repos)
	fee := seedFee(t, repos, "100")

	record(t, pb, fee.GetID(), "80", models.PaymentModeCash)
	overpay := record(t, pb, fee.GetID(), "40", models.PaymentModeCash)

	credit, err := repos.Credits.GetOpenBySourceFee(t.Context(), fee.GetID())
	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.True(t, credit.Amount.Equal(dec(t, "20")))

	// Voiding the overpaying payment removes the excess, so the credit
	// derived from it must go too.
	require.NoError(t, pb.VoidFeePayment(t.Context(), overpay.GetID(), "bursar"))

	credit, err = repos.Credits.GetOpenBySourceFee(t.Context(), fee.GetID())
	require.NoError(t, err)
	assert.Nil(t, credit, "credit must not survive the payment that funded it")

	updated, err := repos.Fees.GetByID(t.Context(), fee.GetID())
	require.NoError(t, err)
	assert.True(t, updated.AmountPaid.Equal(dec(t, "80")))
	assert.True(t, updated.Balance.Equal(dec(t, "20")))
}

func TestRecordFeePaymentOrderIndependent(t *testing.T) {
	amounts := [][]string{
		{"40", "35", "25"},
		{"25", "40", "35"},
		{"35", "25", "40"},
	}

	for _, order := range amounts {
		repos, _ := newTestRepositories()
		pb := newPaymentEngine(repos)
		fee := seedFee(t, repos, "100")

		for _, amount := range order {
			record(t, pb, fee.GetID(), amount, models.PaymentModeCash)
		}

		updated, err := repos.Fees.GetByID(t.Context(), fee.GetID())
		require.NoError(t, err)
		assert.True(t, updated.AmountPaid.Equal(dec(t, "100")), "order %v", order)
		assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus, "order %v", order)
	}
}

func TestRecordFeePaymentLockedTarget(t *testing.T) {
	repos, _ := newTestRepositories()
	pb := newPaymentEngine(repos)
	fee := seedFee(t, repos, "100")
	fee.GenerationStatus = models.GenerationStatusLocked
	require.NoError(t, repos.Fees.Save(t.Context(), fee))

	_, err := pb.RecordFeePayment(t.Context(), RecordPaymentRequest{
		TargetID: fee.GetID(), Amount: dec(t, "10"),
		PaymentMode: models.PaymentModeCash, PaymentDate: time.Now(),
	})
	assert.ErrorIs(t, err, ErrTargetLocked)
}

func TestRecordFeePaymentDuplicateReference(t *testing.T) {
	repos, _ := newTestRepositories()
	pb := newPaymentEngine(repos)
	fee := seedFee(t, repos, "100")

	_, err := pb.RecordFeePayment(t.Context(), RecordPaymentRequest{
		TargetID: fee.GetID(), Amount: dec(t, "10"),
		PaymentMode: models.PaymentModeMobileMoney, PaymentDate: time.Now(),
		Reference: "MM-12345",
	})
	require.NoError(t, err)

	_, err = pb.RecordFeePayment(t.Context(), RecordPaymentRequest{
		TargetID: fee.GetID(), Amount: dec(t, "10"),
		PaymentMode: models.PaymentModeMobileMoney, PaymentDate: time.Now(),
		Reference: "MM-12345",
	})
	assert.ErrorIs(t, err, ErrDuplicateReference)
}

func TestChequePaymentsWaitForConfirmation(t *testing.T) {
	repos, _ := newTestRepositories()
	pb := newPaymentEngine(repos)
	fee := seedFee(t, repos, "100")

	payment := record(t, pb, fee.GetID(), "60", models.PaymentModeCheque)
	assert.False(t, payment.IsConfirmed)

	// Unconfirmed money is not in the ledger totals yet.
	updated, err := repos.Fees.GetByID(t.Context(), fee.GetID())
	require.NoError(t, err)
	assert.True(t, updated.AmountPaid.IsZero())
	assert.Equal(t, models.PaymentStatusUnpaid, updated.PaymentStatus)

	require.NoError(t, pb.ConfirmManualPayment(t.Context(), payment.GetID(), "accountant"))

	updated, err = repos.Fees.GetByID(t.Context(), fee.GetID())
	require.NoError(t, err)
	assert.True(t, updated.AmountPaid.Equal(dec(t, "60")))
	assert.Equal(t, models.PaymentStatusPartial, updated.PaymentStatus)

	// Confirming twice is rejected.
	err = pb.ConfirmManualPayment(t.Context(), payment.GetID(), "accountant")
	assert.ErrorIs(t, err, ErrPaymentConfirmed)
}

func TestVoidFeePaymentRecomputesFromRemaining(t *testing.T) {
	repos, store := newTestRepositories()
	pb := newPaymentEngine(repos)
	fee := seedFee(t, repos, "100")

	first := record(t, pb, fee.GetID(), "40", models.PaymentModeCash)
	record(t, pb, fee.GetID(), "60", models.PaymentModeCash)

	updated, err := repos.Fees.GetByID(t.Context(), fee.GetID())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)

	require.NoError(t, pb.VoidFeePayment(t.Context(), first.GetID(), "bursar"))

	updated, err = repos.Fees.GetByID(t.Context(), fee.GetID())
	require.NoError(t, err)
	assert.True(t, updated.AmountPaid.Equal(dec(t, "60")))
	assert.True(t, updated.Balance.Equal(dec(t, "40")))
	assert.Equal(t, models.PaymentStatusPartial, updated.PaymentStatus)

	// The void leaves an audit entry alongside the payment ones.
	var voids int
	for _, rec := range store.audits {
		if rec.Action == AuditActionVoid {
			voids++
		}
	}
	assert.Equal(t, 1, voids)
}

func TestVoidUnknownPayment(t *testing.T) {
	repos, _ := newTestRepositories()
	pb := newPaymentEngine(repos)

	err := pb.VoidFeePayment(t.Context(), "missing", "bursar")
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestRecordBillPayment(t *testing.T) {
	repos, _ := newTestRepositories()
	pb := newPaymentEngine(repos)

	bill := &models.Bill{
		BillNumber:       "BILL2026000001",
		StudentID:        "student_001",
		TotalAmount:      dec(t, "250"),
		Balance:          dec(t, "250"),
		PaymentStatus:    models.PaymentStatusUnpaid,
		GenerationStatus: models.GenerationStatusGenerated,
	}
	require.NoError(t, repos.Bills.Save(t.Context(), bill))

	payment, err := pb.RecordBillPayment(t.Context(), RecordPaymentRequest{
		TargetID: bill.GetID(), Amount: dec(t, "300"),
		PaymentMode: models.PaymentModeCash, PaymentDate: time.Now(),
		RecordedBy: "bursar",
	})
	require.NoError(t, err)
	assert.True(t, payment.IsConfirmed)

	updated, err := repos.Bills.GetByID(t.Context(), bill.GetID())
	require.NoError(t, err)
	assert.True(t, updated.AmountPaid.Equal(dec(t, "250")))
	assert.True(t, updated.Balance.IsZero())
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)

	credit, err := repos.Credits.GetOpenBySourceBill(t.Context(), bill.GetID())
	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.True(t, credit.Amount.Equal(dec(t, "50")))
}

func TestRecordBillPaymentDuplicateReference(t *testing.T) {
	repos, _ := newTestRepositories()
	pb := newPaymentEngine(repos)

	bill := &models.Bill{
		BillNumber:       "BILL2026000002",
		StudentID:        "student_001",
		TotalAmount:      dec(t, "250"),
		Balance:          dec(t, "250"),
		PaymentStatus:    models.PaymentStatusUnpaid,
		GenerationStatus: models.GenerationStatusGenerated,
	}
	require.NoError(t, repos.Bills.Save(t.Context(), bill))

	_, err := pb.RecordBillPayment(t.Context(), RecordPaymentRequest{
		TargetID: bill.GetID(), Amount: dec(t, "100"),
		PaymentMode: models.PaymentModeMobileMoney, PaymentDate: time.Now(),
		Reference: "MM-67890",
	})
	require.NoError(t, err)

	_, err = pb.RecordBillPayment(t.Context(), RecordPaymentRequest{
		TargetID: bill.GetID(), Amount: dec(t, "100"),
		PaymentMode: models.PaymentModeMobileMoney, PaymentDate: time.Now(),
		Reference: "MM-67890",
	})
	assert.ErrorIs(t, err, ErrDuplicateReference)
}

func TestReceiptNumbersAreIssued(t *testing.T) {
	repos, _ := newTestRepositories()
	pb := newPaymentEngine(repos)
	fee := seedFee(t, repos, "100")

	first := record(t, pb, fee.GetID(), "10", models.PaymentModeCash)
	second := record(t, pb, fee.GetID(), "10", models.PaymentModeCash)

	assert.NotEmpty(t, first.ReceiptNumber)
	assert.NotEmpty(t, second.ReceiptNumber)
	assert.Contains(t, first.ReceiptNumber, "FEE-")
}

package business

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/edusuite/service-fees/service/models"
	"github.com/edusuite/service-fees/service/repository"
	"github.com/pitabwire/frame"
)

func newTestService() (context.Context, *frame.Service) {
	return context.Background(), &frame.Service{}
}

// fakeTxManager runs the closure against the in-memory store, restoring a
// snapshot when the closure errors so failed transactions roll back.
type fakeTxManager struct{ store *memStore }

func (m fakeTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	saved := m.store.clone()
	if err := fn(ctx); err != nil {
		m.store.restore(saved)
		return err
	}
	return nil
}

type memStore struct {
	mu  sync.Mutex
	seq int

	fees         map[string]*models.Fee
	bills        map[string]*models.Bill
	billItems    map[string][]*models.BillItem
	payments     map[string]*models.Payment
	billPayments map[string]*models.BillPayment
	credits      map[string]*models.Credit
	pending      map[string]*models.PendingPayment
	audits       []*models.AuditRecord
	expenses     map[string]*models.Expense
	statements   map[string]*models.BankStatement
}

func newMemStore() *memStore {
	return &memStore{
		fees:         map[string]*models.Fee{},
		bills:        map[string]*models.Bill{},
		billItems:    map[string][]*models.BillItem{},
		payments:     map[string]*models.Payment{},
		billPayments: map[string]*models.BillPayment{},
		credits:      map[string]*models.Credit{},
		pending:      map[string]*models.PendingPayment{},
		expenses:     map[string]*models.Expense{},
		statements:   map[string]*models.BankStatement{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%04d", prefix, s.seq)
}

func cloneMap[V any](src map[string]*V) map[string]*V {
	out := make(map[string]*V, len(src))
	for k, v := range src {
		copied := *v
		out[k] = &copied
	}
	return out
}

func (s *memStore) clone() *memStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make(map[string][]*models.BillItem, len(s.billItems))
	for k, v := range s.billItems {
		items[k] = append([]*models.BillItem{}, v...)
	}
	return &memStore{
		seq:          s.seq,
		fees:         cloneMap(s.fees),
		bills:        cloneMap(s.bills),
		billItems:    items,
		payments:     cloneMap(s.payments),
		billPayments: cloneMap(s.billPayments),
		credits:      cloneMap(s.credits),
		pending:      cloneMap(s.pending),
		audits:       append([]*models.AuditRecord{}, s.audits...),
		expenses:     cloneMap(s.expenses),
		statements:   cloneMap(s.statements),
	}
}

func (s *memStore) restore(saved *memStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = saved.seq
	s.fees = saved.fees
	s.bills = saved.bills
	s.billItems = saved.billItems
	s.payments = saved.payments
	s.billPayments = saved.billPayments
	s.credits = saved.credits
	s.pending = saved.pending
	s.audits = saved.audits
	s.expenses = saved.expenses
	s.statements = saved.statements
}

func newTestRepositories() (*repository.Repositories, *memStore) {
	store := newMemStore()
	return &repository.Repositories{
		Tx:           fakeTxManager{store: store},
		Fees:         &fakeFeeRepo{store: store},
		Bills:        &fakeBillRepo{store: store},
		Payments:     &fakePaymentRepo{store: store},
		BillPayments: &fakeBillPaymentRepo{store: store},
		Credits:      &fakeCreditRepo{store: store},
		Pending:      &fakePendingRepo{store: store},
		Audits:       &fakeAuditRepo{store: store},
		Expenses:     &fakeExpenseRepo{store: store},
		Bank:         &fakeBankRepo{store: store},
	}, store
}

type fakeFeeRepo struct{ store *memStore }

func (r *fakeFeeRepo) GetByID(_ context.Context, id string) (*models.Fee, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	fee, ok := r.store.fees[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *fee
	return &copied, nil
}

func (r *fakeFeeRepo) GetForUpdate(ctx context.Context, id string) (*models.Fee, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeFeeRepo) Save(_ context.Context, fee *models.Fee) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if fee.GetID() == "" {
		fee.ID = r.store.nextID("fee")
	}
	copied := *fee
	r.store.fees[fee.GetID()] = &copied
	return nil
}

func (r *fakeFeeRepo) ListByStudent(_ context.Context, studentID string) ([]*models.Fee, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*models.Fee
	for _, fee := range r.store.fees {
		if fee.StudentID == studentID {
			copied := *fee
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetID() < out[j].GetID() })
	return out, nil
}

type fakeBillRepo struct{ store *memStore }

func (r *fakeBillRepo) GetByID(_ context.Context, id string) (*models.Bill, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	bill, ok := r.store.bills[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *bill
	return &copied, nil
}

func (r *fakeBillRepo) GetForUpdate(ctx context.Context, id string) (*models.Bill, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeBillRepo) Save(_ context.Context, bill *models.Bill) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if bill.GetID() == "" {
		bill.ID = r.store.nextID("bill")
	}
	copied := *bill
	r.store.bills[bill.GetID()] = &copied
	return nil
}

func (r *fakeBillRepo) SaveItem(_ context.Context, item *models.BillItem) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if item.GetID() == "" {
		item.ID = r.store.nextID("item")
	}
	copied := *item
	r.store.billItems[item.BillID] = append(r.store.billItems[item.BillID], &copied)
	return nil
}

func (r *fakeBillRepo) ListItems(_ context.Context, billID string) ([]*models.BillItem, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]*models.BillItem{}, r.store.billItems[billID]...), nil
}

func (r *fakeBillRepo) LastBillNumber(_ context.Context, prefix string) (string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	last := ""
	for _, bill := range r.store.bills {
		if strings.HasPrefix(bill.BillNumber, prefix) && bill.BillNumber > last {
			last = bill.BillNumber
		}
	}
	return last, nil
}

type fakePaymentRepo struct{ store *memStore }

func (r *fakePaymentRepo) GetByID(_ context.Context, id string) (*models.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	payment, ok := r.store.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *payment
	return &copied, nil
}

func (r *fakePaymentRepo) GetByReference(_ context.Context, reference string) (*models.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, payment := range r.store.payments {
		if payment.Reference == reference && reference != "" {
			copied := *payment
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakePaymentRepo) Save(_ context.Context, payment *models.Payment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if payment.GetID() == "" {
		payment.ID = r.store.nextID("pay")
	}
	copied := *payment
	r.store.payments[payment.GetID()] = &copied
	return nil
}

func (r *fakePaymentRepo) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.payments, id)
	return nil
}

func (r *fakePaymentRepo) ListByFee(_ context.Context, feeID string) ([]*models.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*models.Payment
	for _, payment := range r.store.payments {
		if payment.FeeID == feeID {
			copied := *payment
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) SumConfirmedByFee(_ context.Context, feeID string) (decimal.Decimal, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	total := decimal.Zero
	for _, payment := range r.store.payments {
		if payment.FeeID == feeID && payment.IsConfirmed {
			total = total.Add(payment.Amount)
		}
	}
	return total, nil
}

func (r *fakePaymentRepo) ListByDate(ctx context.Context, date time.Time) ([]*models.Payment, error) {
	from := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return r.ListByPeriod(ctx, from, from.AddDate(0, 0, 1))
}

func (r *fakePaymentRepo) ListByPeriod(_ context.Context, from, to time.Time) ([]*models.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*models.Payment
	for _, payment := range r.store.payments {
		if !payment.PaymentDate.Before(from) && payment.PaymentDate.Before(to) {
			copied := *payment
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeBillPaymentRepo struct{ store *memStore }

func (r *fakeBillPaymentRepo) GetByID(_ context.Context, id string) (*models.BillPayment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	payment, ok := r.store.billPayments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *payment
	return &copied, nil
}

func (r *fakeBillPaymentRepo) GetByReference(_ context.Context, reference string) (*models.BillPayment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, payment := range r.store.billPayments {
		if payment.Reference == reference && reference != "" {
			copied := *payment
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeBillPaymentRepo) Save(_ context.Context, payment *models.BillPayment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if payment.GetID() == "" {
		payment.ID = r.store.nextID("bpay")
	}
	copied := *payment
	r.store.billPayments[payment.GetID()] = &copied
	return nil
}

func (r *fakeBillPaymentRepo) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.billPayments, id)
	return nil
}

func (r *fakeBillPaymentRepo) ListByBill(_ context.Context, billID string) ([]*models.BillPayment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*models.BillPayment
	for _, payment := range r.store.billPayments {
		if payment.BillID == billID {
			copied := *payment
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeBillPaymentRepo) SumConfirmedByBill(_ context.Context, billID string) (decimal.Decimal, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	total := decimal.Zero
	for _, payment := range r.store.billPayments {
		if payment.BillID == billID && payment.IsConfirmed {
			total = total.Add(payment.Amount)
		}
	}
	return total, nil
}

func (r *fakeBillPaymentRepo) ListByDate(ctx context.Context, date time.Time) ([]*models.BillPayment, error) {
	from := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return r.ListByPeriod(ctx, from, from.AddDate(0, 0, 1))
}

func (r *fakeBillPaymentRepo) ListByPeriod(_ context.Context, from, to time.Time) ([]*models.BillPayment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*models.BillPayment
	for _, payment := range r.store.billPayments {
		if !payment.PaymentDate.Before(from) && payment.PaymentDate.Before(to) {
			copied := *payment
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeCreditRepo struct{ store *memStore }

func (r *fakeCreditRepo) Save(_ context.Context, credit *models.Credit) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if credit.GetID() == "" {
		credit.ID = r.store.nextID("credit")
	}
	copied := *credit
	r.store.credits[credit.GetID()] = &copied
	return nil
}

func (r *fakeCreditRepo) GetOpenBySourceFee(_ context.Context, feeID string) (*models.Credit, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, credit := range r.store.credits {
		if credit.SourceFeeID == feeID && !credit.IsUsed {
			copied := *credit
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeCreditRepo) GetOpenBySourceBill(_ context.Context, billID string) (*models.Credit, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, credit := range r.store.credits {
		if credit.SourceBillID == billID && !credit.IsUsed {
			copied := *credit
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeCreditRepo) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.credits, id)
	return nil
}

func (r *fakeCreditRepo) ListByStudent(_ context.Context, studentID string) ([]*models.Credit, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*models.Credit
	for _, credit := range r.store.credits {
		if credit.StudentID == studentID {
			copied := *credit
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakePendingRepo struct{ store *memStore }

func (r *fakePendingRepo) Save(_ context.Context, pending *models.PendingPayment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if pending.GetID() == "" {
		pending.ID = r.store.nextID("pending")
	}
	if pending.CreatedAt.IsZero() {
		pending.CreatedAt = time.Now()
	}
	copied := *pending
	r.store.pending[pending.Reference] = &copied
	return nil
}

func (r *fakePendingRepo) GetByReference(_ context.Context, reference string) (*models.PendingPayment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	pending, ok := r.store.pending[reference]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *pending
	return &copied, nil
}

func (r *fakePendingRepo) GetOpenByTarget(_ context.Context, targetType, targetID string) (*models.PendingPayment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, pending := range r.store.pending {
		if pending.TargetType == targetType && pending.TargetID == targetID &&
			pending.Status == models.PendingStatusPending {
			copied := *pending
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakePendingRepo) CompleteIfPending(_ context.Context, reference string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	pending, ok := r.store.pending[reference]
	if !ok || pending.Status != models.PendingStatusPending {
		return false, nil
	}
	now := time.Now()
	pending.Status = models.PendingStatusCompleted
	pending.CompletedAt = &now
	return true, nil
}

func (r *fakePendingRepo) MarkFailed(ctx context.Context, reference string) error {
	return r.setStatus(reference, models.PendingStatusFailed)
}

func (r *fakePendingRepo) MarkCancelled(ctx context.Context, reference string) error {
	return r.setStatus(reference, models.PendingStatusCancelled)
}

func (r *fakePendingRepo) setStatus(reference, status string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	pending, ok := r.store.pending[reference]
	if ok && pending.Status == models.PendingStatusPending {
		pending.Status = status
	}
	return nil
}

type fakeAuditRepo struct{ store *memStore }

func (r *fakeAuditRepo) Append(_ context.Context, record *models.AuditRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if record.GetID() == "" {
		record.ID = r.store.nextID("audit")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	copied := *record
	r.store.audits = append(r.store.audits, &copied)
	return nil
}

func (r *fakeAuditRepo) ListByObject(_ context.Context, modelName, objectID string) ([]*models.AuditRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*models.AuditRecord
	for _, record := range r.store.audits {
		if record.ModelName == modelName && record.ObjectID == objectID {
			copied := *record
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) ListByUser(_ context.Context, userID string, from, to time.Time) ([]*models.AuditRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*models.AuditRecord
	for _, record := range r.store.audits {
		if record.UserID == userID && !record.CreatedAt.Before(from) && record.CreatedAt.Before(to) {
			copied := *record
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeExpenseRepo struct{ store *memStore }

func (r *fakeExpenseRepo) Save(_ context.Context, expense *models.Expense) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if expense.GetID() == "" {
		expense.ID = r.store.nextID("exp")
	}
	copied := *expense
	r.store.expenses[expense.GetID()] = &copied
	return nil
}

func (r *fakeExpenseRepo) SumByPeriod(_ context.Context, from, to time.Time) (decimal.Decimal, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	total := decimal.Zero
	for _, expense := range r.store.expenses {
		if !expense.Date.Before(from) && expense.Date.Before(to) {
			total = total.Add(expense.Amount)
		}
	}
	return total, nil
}

type fakeBankRepo struct{ store *memStore }

func (r *fakeBankRepo) Save(_ context.Context, statement *models.BankStatement) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if statement.GetID() == "" {
		statement.ID = r.store.nextID("stmt")
	}
	key := fmt.Sprintf("%04d-%02d", statement.Year, statement.Month)
	copied := *statement
	r.store.statements[key] = &copied
	return nil
}

func (r *fakeBankRepo) GetByMonth(_ context.Context, year, month int) (*models.BankStatement, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	statement, ok := r.store.statements[fmt.Sprintf("%04d-%02d", year, month)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *statement
	return &copied, nil
}

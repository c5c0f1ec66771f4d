package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edusuite/service-fees/service/models"
	"github.com/pitabwire/frame"
)

type BillRepository interface {
	GetByID(ctx context.Context, id string) (*models.Bill, error)
	GetForUpdate(ctx context.Context, id string) (*models.Bill, error)
	Save(ctx context.Context, bill *models.Bill) error
	SaveItem(ctx context.Context, item *models.BillItem) error
	ListItems(ctx context.Context, billID string) ([]*models.BillItem, error)
	// LastBillNumber returns the highest bill number with the given prefix,
	// or empty when none exists yet.
	LastBillNumber(ctx context.Context, prefix string) (string, error)
}

type billRepository struct {
	abstractRepository
}

func NewBillRepository(_ context.Context, service *frame.Service) BillRepository {
	return &billRepository{abstractRepository{service: service}}
}

func (repo *billRepository) GetByID(ctx context.Context, id string) (*models.Bill, error) {
	bill := models.Bill{}
	if err := repo.readDB(ctx).First(&bill, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &bill, nil
}

func (repo *billRepository) GetForUpdate(ctx context.Context, id string) (*models.Bill, error) {
	bill := models.Bill{}
	err := repo.writeDB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&bill, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

func (repo *billRepository) Save(ctx context.Context, bill *models.Bill) error {
	return repo.writeDB(ctx).Save(bill).Error
}

func (repo *billRepository) SaveItem(ctx context.Context, item *models.BillItem) error {
	return repo.writeDB(ctx).Save(item).Error
}

func (repo *billRepository) ListItems(ctx context.Context, billID string) ([]*models.BillItem, error) {
	var items []*models.BillItem
	err := repo.readDB(ctx).Where("bill_id = ?", billID).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (repo *billRepository) LastBillNumber(ctx context.Context, prefix string) (string, error) {
	bill := models.Bill{}
	err := repo.readDB(ctx).
		Where("bill_number LIKE ?", prefix+"%").
		Order("bill_number DESC").
		First(&bill).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return bill.BillNumber, nil
}

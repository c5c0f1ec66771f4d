package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/pitabwire/frame"
)

type txKey struct{}

// TxManager scopes a set of repository calls to one database transaction.
// Repositories pick the transaction out of the context, so any method called
// inside fn participates in it.
type TxManager interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewTxManager(_ context.Context, service *frame.Service) TxManager {
	return &txManager{service: service}
}

type txManager struct {
	service *frame.Service
}

func (m *txManager) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	db := m.service.DB(ctx, false)
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		db = tx
	}
	return db.Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

type abstractRepository struct {
	service *frame.Service
}

func (ar *abstractRepository) readDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return ar.service.DB(ctx, true)
}

func (ar *abstractRepository) writeDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return ar.service.DB(ctx, false)
}

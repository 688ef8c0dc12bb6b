package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository stores T, a gorm model with an integer primary key named
// id. Every mutation is its own transaction.
type Repository[T any] struct {
	db *gorm.DB
}

func NewRepository[T any](db *gorm.DB) *Repository[T] {
	return &Repository[T]{db: db}
}

func (r *Repository[T]) List(ctx context.Context) ([]T, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var out []T
	if err := r.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository[T]) Get(ctx context.Context, id int64) (*T, bool, error) {
	if r.db == nil {
		return nil, false, errDBUnavailable
	}
	var model T
	err := r.db.WithContext(ctx).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &model, true, nil
}

func (r *Repository[T]) Create(ctx context.Context, entity *T) error {
	return r.tx(ctx, func(tx *gorm.DB) error {
		return tx.Create(entity).Error
	})
}

func (r *Repository[T]) Save(ctx context.Context, entity *T) error {
	return r.tx(ctx, func(tx *gorm.DB) error {
		return tx.Save(entity).Error
	})
}

func (r *Repository[T]) Delete(ctx context.Context, entity *T) error {
	return r.tx(ctx, func(tx *gorm.DB) error {
		return tx.Delete(entity).Error
	})
}

// tx commits when fn returns nil and rolls back otherwise.
func (r *Repository[T]) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(fn)
}

package repository

import (
	"context"

	"github.com/smallbiznis/fieldops/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic gorm-backed store. Zero-value fields of a query
// struct are ignored by Find and FindOne.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID any, values map[string]any) error
	Delete(ctx context.Context, query *T) error
	Count(ctx context.Context, query *T) (int64, error)
	BatchCreate(ctx context.Context, resources []*T) error
}

package repository

import (
	salesorderdomain "github.com/smallbiznis/fieldops/internal/salesorder/domain"
	"github.com/smallbiznis/fieldops/pkg/repository"
	"gorm.io/gorm"
)

// Stores groups the generic stores backing sales orders.
type Stores struct {
	Orders repository.Repository[salesorderdomain.SalesOrder]
	Items  repository.Repository[salesorderdomain.SalesOrderItem]
}

func Provide(db *gorm.DB) Stores {
	return Stores{
		Orders: repository.ProvideStore[salesorderdomain.SalesOrder](db),
		Items:  repository.ProvideStore[salesorderdomain.SalesOrderItem](db),
	}
}

// WithTrx rebinds both stores to tx.
func (s Stores) WithTrx(tx *gorm.DB) Stores {
	return Stores{
		Orders: s.Orders.WithTrx(tx),
		Items:  s.Items.WithTrx(tx),
	}
}

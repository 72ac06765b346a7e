package billing

import (
	"context"

	"github.com/google/uuid"
)

type BillRepository interface {
	Create(ctx context.Context, b *Bill) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	// GetForUpdate reads the bill and locks its row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Bill, error)
	// Update writes charges, derived totals and payment fields. bill_number
	// is never written.
	Update(ctx context.Context, b *Bill) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Bill, int, error)
}

type ItemRepository interface {
	Create(ctx context.Context, it *Item) error
	ListByBill(ctx context.Context, billID uuid.UUID) ([]*Item, error)
	Delete(ctx context.Context, billID, itemID uuid.UUID) error
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	ListByBill(ctx context.Context, billID uuid.UUID) ([]*Payment, error)
}

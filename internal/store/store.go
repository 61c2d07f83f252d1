package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bengkelku/api/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrOrderSettled  = errors.New("order is settled")
)

// Store is the persistence boundary. Documents are read, patched, and
// written back whole; the engine never holds a lock across calls.
// Implemented by memory.Store (tests, dev) and postgres.Store.
type Store interface {
	// Orders
	CreateOrder(ctx context.Context, o domain.WorkOrder) error
	GetOrder(ctx context.Context, id uuid.UUID) (domain.WorkOrder, error)
	PutOrder(ctx context.Context, o domain.WorkOrder) error
	ListOrders(ctx context.Context, limit, offset int) ([]domain.WorkOrder, error)
	NextOrderNumber(ctx context.Context) (int, error)

	// Inventory
	ListInventory(ctx context.Context) ([]domain.InventoryItem, error)
	GetInventoryItem(ctx context.Context, id uuid.UUID) (domain.InventoryItem, error)
	PutInventoryItem(ctx context.Context, item domain.InventoryItem) error
	// UpdateInventoryUsage writes the consumed counter and the linked-order
	// reference in one store roundtrip so stale linkage cannot survive a save.
	UpdateInventoryUsage(ctx context.Context, id uuid.UUID, consumed decimal.Decimal, linkedOrderID *uuid.UUID) error

	// Partners (shops and workers)
	ListPartners(ctx context.Context, kind string) ([]domain.Partner, error)
	GetPartner(ctx context.Context, kind string, id uuid.UUID) (domain.Partner, error)
	GetPartnerByName(ctx context.Context, kind, name string) (domain.Partner, error)
	PutPartner(ctx context.Context, p domain.Partner) error

	// Name catalogs for line classification
	ListCatalogNames(ctx context.Context, kind string) ([]string, error)
	AddCatalogName(ctx context.Context, kind, name string) error

	// Settings
	GetSettings(ctx context.Context) (domain.Settings, error)
	PutSettings(ctx context.Context, s domain.Settings) error

	// Users
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (domain.User, error)
	CreateUser(ctx context.Context, u domain.User) error
}

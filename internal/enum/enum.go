package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusOpen    = "OPEN"
	OrderStatusSettled = "SETTLED"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleOwner     = "OWNER"
	UserRoleManager   = "MANAGER"
	UserRoleFrontdesk = "FRONTDESK"
	UserRoleMechanic  = "MECHANIC"
)

const (
	LineKindPart  = "PART"
	LineKindLabor = "LABOR"
)

// Counterparty ledger variants: parts come from supplier shops,
// labor is performed by workers.
const (
	PartnerKindShop   = "SHOP"
	PartnerKindWorker = "WORKER"
)

// ── Group B: Configurable labels (no DB constraint) ──

const (
	WarningFieldQuantity = "QUANTITY"
	WarningFieldPrice    = "PRICE"
)

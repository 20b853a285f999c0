package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies the type of a journal event.
type Kind string

const (
	KindPricePosted Kind = "price_posted"
	KindBuy         Kind = "buy"
	KindSell        Kind = "sell"
	KindApprove     Kind = "approve"
)

// Event is a single journal entry. Fields that do not apply to a kind are left zero.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Kind       Kind            `json:"kind"`
	Actor      string          `json:"actor"`
	AssetClass string          `json:"asset_class,omitempty"`
	AssetID    *uint64         `json:"asset_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Escrow     decimal.Decimal `json:"escrow"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Journal appends events.
type Journal interface {
	Append(ctx context.Context, event Event) error
}

// AppendTimeout bounds a detached append.
const AppendTimeout = 5 * time.Second

// Detach returns a context for recording an event whose state change has
// already committed. It keeps ctx values but not its cancellation, so a
// client hanging up does not drop the record.
func Detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), AppendTimeout)
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(kind Kind, actor string) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		Actor:      actor,
		OccurredAt: time.Now().UTC(),
	}
}

// WithAsset sets the asset id on the event.
func (e Event) WithAsset(id uint64) Event {
	e.AssetID = &id
	return e
}

// Nop discards every event.
type Nop struct{}

// Append implements Journal.
func (Nop) Append(context.Context, Event) error { return nil }

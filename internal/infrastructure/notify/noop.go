package notify

import (
	"context"

	"github.com/servilink/payhold/internal/domain"
)

// NoopNotifier discards every notification. Used when no push pipeline is
// configured, and in tests.
type NoopNotifier struct{}

func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

func (NoopNotifier) HoldStateChanged(ctx context.Context, hold *domain.Hold) {}

package brokers

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/teamscryps/backend/internal/config"
	"github.com/teamscryps/backend/internal/domain"
)

// Factory maps a user's broker key to its adapter. Adapters are stateless
// apart from their HTTP client, so one instance per vendor is shared.
type Factory struct {
	mu       sync.Mutex
	adapters map[string]Adapter
	cfg      *config.Config
	log      zerolog.Logger
}

// NewFactory creates an adapter factory
func NewFactory(cfg *config.Config, log zerolog.Logger) *Factory {
	return &Factory{
		adapters: make(map[string]Adapter),
		cfg:      cfg,
		log:      log,
	}
}

// ForUser returns the adapter for the user's configured broker.
func (f *Factory) ForUser(user *domain.User) (Adapter, error) {
	return f.ForVendor(user.Broker)
}

// ForVendor returns the adapter for a vendor key.
func (f *Factory) ForVendor(vendor string) (Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a, ok := f.adapters[vendor]; ok {
		return a, nil
	}

	var a Adapter
	switch vendor {
	case "zerodha":
		a = NewZerodha(f.cfg.ZerodhaBaseURL, f.log)
	case "groww":
		a = NewGroww(f.cfg.GrowwBaseURL, f.log)
	case "upstox":
		a = NewUpstox(f.cfg.UpstoxBaseURL, f.log)
	default:
		return nil, &Error{
			Kind:    KindPermanent,
			Vendor:  vendor,
			Message: "unsupported broker",
		}
	}

	f.adapters[vendor] = a
	return a, nil
}

package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/safeapps-io/money-back/internal/core/contracts"
	"github.com/safeapps-io/money-back/internal/core/domain"
)

// Pinger writes a fixed-interval keep-alive event to a connected client.
// No channel involved: proxies and load balancers kill idle connections,
// the ping defeats that. Re-armed on every client connect.
type Pinger struct {
	log      *slog.Logger
	interval time.Duration
}

func NewPinger(log *slog.Logger, interval time.Duration) *Pinger {
	if interval <= 0 {
		interval = 25 * time.Second
	}
	return &Pinger{log: log, interval: interval}
}

// Start pings until ctx ends. Runs as a goroutine per connection.
func (p *Pinger) Start(ctx context.Context, c contracts.Client) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Send(ctx, domain.Event{Type: domain.TypePing}); err != nil {
				p.log.DebugContext(ctx, "pinger - send failed", "session_id", c.SessionID(), "err", err)
				return
			}
		}
	}
}

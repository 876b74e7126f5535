package hal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/iris-bridge/pkg/bootstrap"
)

const seedLogPrefix = "hal:seed"

// Apply sets every seeded feature on b that b does not already report.
// Existing values win so a restart keeps what clients configured.
func Apply(ctx context.Context, b Backend, cfg *bootstrap.SeedConfig) (int, error) {
	if cfg == nil {
		return 0, nil
	}
	applied := 0
	for _, f := range cfg.Features {
		cur, err := b.ConfigureGet(ctx, f.Type, nil)
		if err != nil {
			return applied, fmt.Errorf("%s - read type %d: %w", seedLogPrefix, f.Type, err)
		}
		if cur != nil {
			continue
		}
		status, err := b.ConfigureSet(ctx, f.Type, f.Values)
		if err != nil {
			return applied, fmt.Errorf("%s - set type %d: %w", seedLogPrefix, f.Type, err)
		}
		if status != StatusOK {
			slog.Warn(fmt.Sprintf("%s - backend rejected seeded type %d with status %d", seedLogPrefix, f.Type, status))
			continue
		}
		applied++
	}
	slog.Info(fmt.Sprintf("%s - Applied %d of %d seeded features", seedLogPrefix, applied, len(cfg.Features)))
	return applied, nil
}

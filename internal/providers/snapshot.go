// Package providers holds the process-local provider-id snapshot described
// in spec §5: populated at most once per process lifetime, never
// invalidated, and falling back to an empty list on load error.
package providers

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/ternarybob/arbor"
)

// Snapshot is a lazily-initialized, process-wide cache of provider ids.
// Workers are expected to tolerate a possibly stale list (§5); it is never
// refreshed once populated.
type Snapshot struct {
	once sync.Once
	ids  []string
}

// Get returns the cached provider ids, loading them on first call via
// loader. A loader error is logged and yields an empty (not nil) list,
// which is then cached for the remainder of the process's lifetime.
func (s *Snapshot) Get(ctx context.Context, q sqlx.QueryerContext, logger arbor.ILogger) []string {
	s.once.Do(func() {
		ids, err := loadProviderIDs(ctx, q)
		if err != nil {
			logger.Warn().Err(err).Msg("providers: failed to load provider id snapshot, falling back to empty list")
			ids = []string{}
		}
		s.ids = ids
	})
	return s.ids
}

func loadProviderIDs(ctx context.Context, q sqlx.QueryerContext) ([]string, error) {
	var ids []string
	err := sqlx.SelectContext(ctx, q, &ids, `
		SELECT DISTINCT provider_id FROM jobs
		WHERE provider_id IS NOT NULL AND provider_id <> ''
		ORDER BY provider_id`)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

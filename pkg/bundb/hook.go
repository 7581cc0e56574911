package bundb

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
)

// slowQueryHook logs statements slower than threshold
type slowQueryHook struct {
	threshold time.Duration
	log       logrus.FieldLogger
}

var _ bun.QueryHook = (*slowQueryHook)(nil)

func (h *slowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *slowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	if elapsed < h.threshold {
		return
	}

	entry := h.log.WithFields(logrus.Fields{
		"operation": event.Operation(),
		"elapsed":   elapsed.String(),
		"query":     event.Query,
	})
	if event.Err != nil {
		entry = entry.WithError(event.Err)
	}
	entry.Warn("slow query")
}

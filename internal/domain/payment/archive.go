package payment

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dispatchly/ledger-api/internal/pkg/logger"
	"github.com/dispatchly/ledger-api/internal/pkg/storage"
)

// Archiver keeps authenticated webhook bodies in object storage for audit
// and manual replay. A nil Archiver stores nothing.
type Archiver struct {
	store  storage.Storage
	prefix string
	now    func() time.Time
}

func NewArchiver(store storage.Storage, prefix string) *Archiver {
	if prefix == "" {
		prefix = "webhooks/paystack"
	}
	return &Archiver{store: store, prefix: strings.TrimSuffix(prefix, "/"), now: time.Now}
}

// Key returns the object key for one delivery. Deliveries of the same
// event are kept side by side.
func (a *Archiver) Key(event, reference string, at time.Time) string {
	if reference == "" {
		reference = "no-reference"
	}
	return fmt.Sprintf("%s/%s/%s/%s-%d-%s.json",
		a.prefix,
		at.UTC().Format("2006/01/02"),
		strings.ReplaceAll(event, ".", "_"),
		reference,
		at.UnixNano(),
		uuid.NewString()[:8],
	)
}

// Store writes the body. Failures are logged; they never fail the webhook.
func (a *Archiver) Store(ctx context.Context, event, reference string, rawBody []byte) {
	if a == nil || a.store == nil {
		return
	}
	key := a.Key(event, reference, a.now())
	if err := a.store.Put(ctx, key, bytes.NewReader(rawBody), "application/json"); err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("key", key).Msg("failed to archive webhook")
	}
}

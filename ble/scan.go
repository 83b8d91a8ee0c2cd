package ble

import (
	"context"
	"fmt"

	"github.com/go-ble/ble"
)

func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
  return ble.WithSigHandler(ctx, cancel)
}

// Perform an active or passive scan and return every advertisement found, duplicates included.
func (h *Handle) ScanAll(ctx context.Context, onAdvertisement func(Advertisement)) error {
  err := h.dev.Scan(ctx, true, onAdvertisement)

  if err != nil {
    return fmt.Errorf("failed to initiate scan: %w", err)
  }

  return nil
}

// Watcher returns a device transport fed by a continuous scan on this adapter.
func (h *Handle) Watcher() *Watcher {
  return NewWatcher(h.ScanAll)
}

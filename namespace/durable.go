package namespace

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/cellbox/sandbox"
)

// DurableLifecycle restores the namespace from its blob before every run and
// writes it back afterwards, so it survives restarts.
type DurableLifecycle struct {
	logger *zap.Logger
	blobs  BlobStore
	codec  *Codec
	locker *Locker
}

// NewDurable creates a durable lifecycle over blobs
func NewDurable(logger *zap.Logger, blobs BlobStore) *DurableLifecycle {
	return &DurableLifecycle{
		logger: logger,
		blobs:  blobs,
		codec:  NewCodec(),
		locker: NewLocker(),
	}
}

// Run restores the namespace, calls fn and persists the result. Bindings the
// codec cannot represent are dropped with a warning.
func (d *DurableLifecycle) Run(ctx context.Context, key Key, fn func(ns sandbox.Namespace) error) error {
	unlock, err := d.locker.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	blob, err := d.blobs.LoadNamespace(ctx, key.UserID, key.NotebookID)
	if err != nil {
		return fmt.Errorf("failed to load namespace: %w", err)
	}

	ns, err := d.codec.Decode(blob)
	if err != nil {
		d.logger.Error("Discarding undecodable namespace",
			zap.Stringer("notebook", key),
			zap.Error(err))
		ns = sandbox.Namespace{}
	}

	fnErr := fn(ns)

	out, skipped, err := d.codec.Encode(ns)
	if len(skipped) > 0 {
		d.logger.Warn("Skipped bindings that cannot be persisted",
			zap.Stringer("notebook", key),
			zap.Strings("names", skipped))
	}
	if err != nil {
		return err
	}

	if err := d.blobs.SaveNamespace(ctx, key.UserID, key.NotebookID, out); err != nil {
		return fmt.Errorf("failed to save namespace: %w", err)
	}

	return fnErr
}

// Discard waits for any running execution of the notebook. The blob itself
// is removed together with the notebook record.
func (d *DurableLifecycle) Discard(ctx context.Context, key Key) error {
	unlock, err := d.locker.Lock(ctx, key)
	if err != nil {
		return err
	}
	unlock()
	return nil
}

// Package strata is the storage core of a persistent key/value store, offered as
// two engine families behind one contract: an append-only Bitcask-style
// engine and a write-ahead-log-backed LSM engine. Open selects and starts
// the engine family configured by options.Engine.
package strata

import (
	"context"
	"fmt"

	"github.com/strata-db/strata/internal/bitcask"
	"github.com/strata-db/strata/internal/lsm"
	"github.com/strata-db/strata/pkg/kv"
	"github.com/strata-db/strata/pkg/logger"
	"github.com/strata-db/strata/pkg/options"
)

// Open constructs and starts the kv.Store backing dataDir, selecting
// between the Bitcask and LSM engine families per the resolved options.
// The returned store is ready for use; the caller is responsible for
// calling Close when done with it.
func Open(ctx context.Context, dataDir string, opts ...options.OptionFunc) (kv.Store, error) {
	resolved := options.NewDefaultOptions()
	resolved.DataDir = dataDir

	for _, opt := range opts {
		opt(&resolved)
	}

	if resolved.Logger == nil {
		resolved.Logger = logger.New("strata")
	}

	var store kv.Store
	switch resolved.Engine {
	case options.EngineBitcask:
		store = bitcask.New(&resolved)
	case options.EngineLSM:
		store = lsm.New(&resolved)
	default:
		return nil, fmt.Errorf("strata: unknown engine kind %q", resolved.Engine)
	}

	if err := store.Start(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

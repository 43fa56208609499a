package recovery

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/rangevault/pkg/types"
)

// fanOut runs fn once per destination in destinations, concurrently,
// returning the first error encountered (if any), after every goroutine
// has returned. This backs the three per-phase synchronizers spec §4.4
// names individually (ReplayCounter, PrepareFuture, CommitFuture): each
// phase waits for every destination it sent a request to before the
// RecoverRanges sub-operation advances, and a timeout on ctx fails the
// whole wait the same way a single slow destination would under the
// originals' per-op timeout.
func fanOut(ctx context.Context, destinations []types.Location, fn func(ctx context.Context, dest types.Location) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, dest := range destinations {
		dest := dest
		g.Go(func() error {
			return fn(gctx, dest)
		})
	}
	return g.Wait()
}

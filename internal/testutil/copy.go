package testutil

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CopyBidirectional shuttles bytes between left and right until either side
// finishes or ctx ends, then closes both.
func CopyBidirectional(ctx context.Context, left, right net.Conn) error {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	// If the context is canceled, close both sides to unblock Copy.
	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	g := errgroup.Group{}
	g.Go(func() error {
		defer closeBoth()
		_, err := io.Copy(left, right)
		return err
	})
	g.Go(func() error {
		defer closeBoth()
		_, err := io.Copy(right, left)
		return err
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

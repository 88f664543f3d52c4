package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/hostbridge/runtime"
)

func newStressCmd(a *app) *cobra.Command {
	var workers, handles int
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Drop owned handles from many goroutines and verify reclamation",
		Long: `stress creates owned handles under one attachment, then releases them
from worker goroutines. Even workers drop handles without the interpreter
lock, odd workers attach first. The command fails unless the heap is back
at its starting counts after the next attachment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if workers < 1 || handles < 0 {
				return fmt.Errorf("workers must be positive and handles non-negative")
			}
			return a.stress(cmd.Context(), cmd.OutOrStdout(), workers, handles)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 8, "releasing goroutines")
	cmd.Flags().IntVar(&handles, "handles", 1000, "owned handles to create")
	return cmd
}

func (a *app) stress(ctx context.Context, out io.Writer, workers, handles int) error {
	rt, err := runtime.New(a.target)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(ctx) }()

	interp, err := rt.NewInterpreter("stress")
	if err != nil {
		return err
	}
	baseline := interp.Stats()

	owned := make([]*runtime.Owned, 0, handles)
	err = interp.Do(ctx, func(tok *runtime.Token) error {
		for i := range handles {
			b, err := tok.IntoHost([]int{i, i + 1, i + 2})
			if err != nil {
				return err
			}
			owned = append(owned, b.ToOwned())
		}
		return nil
	})
	if err != nil {
		return err
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	chunk := (handles + workers - 1) / workers
	for w := range workers {
		lo := w * chunk
		if lo >= handles {
			break
		}
		part := owned[lo:min(lo+chunk, handles)]
		attached := w%2 == 1
		g.Go(func() error {
			if !attached {
				for _, o := range part {
					if err := o.Close(); err != nil {
						return err
					}
				}
				return nil
			}
			return interp.Do(gctx, func(tok *runtime.Token) error {
				for _, o := range part {
					o.Release(tok.Context())
				}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)
	deferred := interp.Stats().Pending

	interp.Attach(ctx).Release()
	after := interp.Stats()

	a.logger.Info("stress finished",
		zap.Int("workers", workers),
		zap.Int("handles", handles),
		zap.Int64("deferred", deferred),
		zap.Duration("elapsed", elapsed))

	fmt.Fprintf(out, "released %d handles from %d workers in %s (%d deferred)\n",
		handles, workers, elapsed.Round(time.Microsecond), deferred)
	renderStats(out, rt)

	if after.Live != baseline.Live || after.Refs != baseline.Refs || after.Pending != 0 {
		return fmt.Errorf("heap did not return to baseline: live %d (want %d), refs %d (want %d), pending %d",
			after.Live, baseline.Live, after.Refs, baseline.Refs, after.Pending)
	}
	return nil
}

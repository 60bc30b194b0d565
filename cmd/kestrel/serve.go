package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kestrel-agent/kestrel/internal/channel"
	"github.com/kestrel-agent/kestrel/internal/cron"
	"github.com/kestrel-agent/kestrel/internal/interfaces"
	"github.com/kestrel-agent/kestrel/internal/runlog"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent daemon: channels and the cron scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(*configPath)
			if err != nil {
				return err
			}
			if err := rt.cfg.ValidateModel(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			channels := make(map[string]interfaces.Channel)
			if rt.cfg.Channels.WS.Enabled {
				ws := channel.NewWS(
					rt.cfg.Channels.WS.URL,
					rt.cfg.Channels.WS.Secret,
					rt.cfg.Channels.WS.Device,
					rt.log,
				)
				channels[ws.Name()] = ws
			}
			if len(channels) == 0 {
				rt.log.Warn("no channels enabled, serving cron only")
			}

			g, gctx := errgroup.WithContext(ctx)

			for _, ch := range channels {
				ch := ch
				g.Go(func() error {
					return ch.Run(gctx, func(ctx context.Context, in interfaces.Inbound) {
						rt.loop.HandleInbound(ctx, ch, in)
					})
				})
			}

			g.Go(func() error {
				return rt.skills.Watch(gctx)
			})

			if rt.cfg.Cron.Enabled {
				runs, err := runlog.Open(filepath.Join(rt.cfg.Workspace, "runs.db"))
				if err != nil {
					return err
				}
				defer runs.Close()

				interval, err := rt.cfg.CronInterval()
				if err != nil {
					return err
				}
				dispatch := func(ctx context.Context, job interfaces.Job) (string, error) {
					ch, ok := channels[job.Channel]
					if !ok {
						ch = logChannel{log: rt.log}
					}
					return rt.loop.HandleJob(ctx, ch, job)
				}
				sched := cron.NewScheduler(rt.store, runs, dispatch, interval, rt.log)
				g.Go(func() error {
					return sched.Run(gctx)
				})
			}

			rt.log.Info("kestrel serving", "workspace", rt.cfg.Workspace)
			err = g.Wait()
			if ctx.Err() != nil {
				fmt.Println("shutting down...")
				return nil
			}
			return err
		},
	}
}

// logChannel receives job replies when the job's channel is not connected;
// the reply still lands in history and the run log.
type logChannel struct {
	log *slog.Logger
}

func (logChannel) Name() string { return "log" }

func (logChannel) Streaming() bool { return false }

func (c logChannel) Send(ctx context.Context, senderID, text string) error {
	c.log.Info("job reply", "sender", senderID, "text", text)
	return nil
}

func (logChannel) Typing(ctx context.Context, senderID string, on bool) error { return nil }

func (logChannel) Run(ctx context.Context, handle func(context.Context, interfaces.Inbound)) error {
	<-ctx.Done()
	return ctx.Err()
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/cortexdash/internal/dashboard"
	"github.com/user/cortexdash/internal/live"
	"github.com/user/cortexdash/internal/store"
	"github.com/user/cortexdash/internal/types"
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Bool("list", false, "print the loaded records before following")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a project's memories live",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

var (
	badgeLive         = color.New(color.FgGreen, color.Bold).Sprint("● Live")
	badgeConnecting   = color.New(color.FgCyan).Sprint("◌ Connecting")
	badgeReconnecting = color.New(color.FgYellow, color.Bold).Sprint("◌ Reconnecting")
	badgeOffline      = color.New(color.FgRed, color.Bold).Sprint("○ Offline")

	addedMark   = color.New(color.FgGreen).Sprint("+")
	updatedMark = color.New(color.FgBlue).Sprint("~")
	deletedMark = color.New(color.FgRed).Sprint("-")
)

func badge(s live.State) string {
	switch s {
	case live.StateConnected:
		return badgeLive
	case live.StateConnecting:
		return badgeConnecting
	case live.StateReconnecting:
		return badgeReconnecting
	default:
		return badgeOffline
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	closer := setupLogging(cfg, true)
	defer closer.Close()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()

	client := newClient(cfg)
	if h, err := client.Health(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %s is not answering: %v\n", client.BaseURL(), err)
	} else {
		fmt.Printf("Server %s (%s, %d live clients)\n", client.BaseURL(), h.Status, h.WebsocketConnections)
	}

	opts := dashboard.OptionsFromConfig(cfg, client)
	opts.Logger = slog.Default()
	d, err := dashboard.New(opts)
	if err != nil {
		return err
	}

	// Observers run under component locks; hand off to the render loop.
	// states holds only the latest state so the badge is never stale.
	states := make(chan live.State, 1)
	changes := make(chan store.Change, 1024)
	d.OnStateChange(func(_, to live.State) {
		publishLatest(states, to)
	})
	d.OnRecordsChange(func(ch store.Change) {
		select {
		case changes <- ch:
		default:
		}
	})

	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	fmt.Printf("Watching %s (%d records)\n", displayProject(d.Status().Project), len(d.Records()))
	if list, _ := cmd.Flags().GetBool("list"); list {
		printRecords(os.Stdout, d.Records())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(sigChan)
		for {
			select {
			case <-gctx.Done():
				return nil
			case sig := <-sigChan:
				if sig == syscall.SIGHUP {
					reloadWatch(d)
					continue
				}
				slog.Info("shutting down", "signal", sig)
				stop()
				return nil
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case s := <-states:
				fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), badge(s))
				if s == live.StateDisconnected {
					fmt.Println("  reconnect budget exhausted; run `cortexdash reload` to retry")
				}
			case ch := <-changes:
				printChange(os.Stdout, d, ch)
			}
		}
	})
	return g.Wait()
}

// publishLatest puts v in the one-slot channel ch, replacing an unread
// value.
func publishLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// reloadWatch re-reads the config for the resync schedule and starts a fresh
// connection attempt.
func reloadWatch(d *dashboard.Dashboard) {
	cfg := loadConfig()
	if err := d.SetResyncSchedule(cfg.Live.ResyncSchedule); err != nil {
		slog.Error("reload resync schedule", "error", err)
	}
	d.Reconnect()
	slog.Info("reloaded", "resync_schedule", cfg.Live.ResyncSchedule)
}

func printChange(w io.Writer, d *dashboard.Dashboard, ch store.Change) {
	ts := time.Now().Format("15:04:05")
	switch ch.Kind {
	case store.ChangeCreated, store.ChangeUpdated:
		r, ok := d.Record(ch.ID)
		if !ok {
			return
		}
		mark := updatedMark
		if ch.Kind == store.ChangeCreated {
			mark = addedMark
		}
		fmt.Fprintf(w, "%s  %s %s [%s] %s\n", ts, mark, r.ID, r.Type, preview(r.Content, 72))
	case store.ChangeDeleted:
		fmt.Fprintf(w, "%s  %s %s\n", ts, deletedMark, ch.ID)
	case store.ChangeReplaced:
		fmt.Fprintf(w, "%s  resynced, %d records\n", ts, len(d.Records()))
	}
}

func displayProject(p string) string {
	if p == "" {
		return "the default project"
	}
	return p
}

func preview(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return s
}

func printRecords(w io.Writer, records []types.Record) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTYPE\tIMPORTANCE\tCREATED\tCONTENT")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.Type,
			r.ImportanceScore,
			r.CreatedAt.Format("2006-01-02 15:04"),
			preview(r.Content, 60),
		)
	}
	tw.Flush()
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/user/cortexdash/internal/chat"
)

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().Duration("timeout", 0, "give up after this long (0 waits indefinitely)")
	askCmd.Flags().Bool("no-sources", false, "do not list the memories the answer cites")
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask about a project's memories and stream the answer",
	Long:  "Ask about a project's memories. The answer streams as it is generated; Ctrl-C stops it and keeps what arrived so far.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var faint = color.New(color.Faint)

func runAsk(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	closer := setupLogging(cfg, true)
	defer closer.Close()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	noSources, _ := cmd.Flags().GetBool("no-sources")

	panel := chat.NewPanel(newClient(cfg), chat.Options{
		Project:      func() string { return cfg.Project },
		Timeout:      timeout,
		TickInterval: cfg.ChatTickInterval(),
		Logger:       slog.Default(),
	})
	defer panel.Close()

	// Observers may run concurrently and out of order; content only grows,
	// so printing the unseen suffix is enough.
	var mu sync.Mutex
	printed := 0
	done := make(chan chat.Session, 1)
	panel.OnChange(func(s chat.Session) {
		mu.Lock()
		defer mu.Unlock()
		if len(s.Content) > printed {
			fmt.Print(s.Content[printed:])
			printed = len(s.Content)
		}
		if s.Phase.Terminal() {
			select {
			case done <- s:
			default:
			}
		}
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if _, err := panel.Send(cmd.Context(), strings.Join(args, " ")); err != nil {
		return err
	}

	var s chat.Session
	for waiting := true; waiting; {
		select {
		case <-sigChan:
			panel.Cancel()
		case s = <-done:
			waiting = false
		}
	}

	mu.Lock()
	defer mu.Unlock()
	switch s.Phase {
	case chat.PhaseCancelled:
		if s.Content != "" {
			fmt.Print("\n\n")
		}
		fmt.Println(color.YellowString(chat.CancelledMarker))
	case chat.PhaseErrored:
		if s.Content != "" {
			fmt.Println()
		}
		return fmt.Errorf("chat failed: %w", s.Err)
	default:
		fmt.Println()
	}

	if !noSources && len(s.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, src := range s.Sources {
			fmt.Printf("  %s [%s] %s\n", src.ID, src.Type, preview(src.ContentPreview, 60))
		}
	}
	via := "stream"
	if s.Fallback {
		via = "single request"
	}
	faint.Printf("(%s via %s)\n", s.Elapsed().Round(100*time.Millisecond), via)
	return nil
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/cortexdash/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("cortexdash setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Server.URL = strings.TrimRight(prompt(scanner, "Server URL", cfg.Server.URL), "/")
		cfg.Server.Token = prompt(scanner, "API token (optional)", cfg.Server.Token)

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		client := newClient(cfg)
		if projects, err := client.ListProjects(ctx); err != nil {
			fmt.Printf("Could not list projects: %v\n", err)
		} else if len(projects) > 0 {
			fmt.Println("Known projects:")
			for _, p := range projects {
				fmt.Printf("  %s  %s (%d memories)\n", p.DBPath, p.Name, p.MemoryCount)
			}
		}
		cfg.Project = prompt(scanner, "Project database path (empty for the server default)", cfg.Project)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

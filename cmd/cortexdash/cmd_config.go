package main

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/user/cortexdash/internal/config"
	"github.com/user/cortexdash/internal/scheduler"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
	configListCmd.Flags().Bool("show-secrets", false, "print secret values in full")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change the config file",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show every effective setting and where it came from",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		show, _ := cmd.Flags().GetBool("show-secrets")
		values, err := config.ListValues(loadConfig(), !show)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}

		w := newTable(os.Stdout)
		fmt.Fprintln(w, "KEY\tVALUE\tSOURCE")
		for _, key := range slices.Sorted(maps.Keys(values)) {
			source := cfgPath
			if env := config.EnvName(key); os.Getenv(env) != "" {
				source = env
			}
			fmt.Fprintf(w, "%s\t%v\t%s\n", key, values[key], source)
		}
		return w.Flush()
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.GetValue(cfgPath, args[0])
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write one setting to the config file",
	Long:  "Write one setting to the config file. Environment variables still take precedence when set. A running watch picks up live.resync_schedule on `cortexdash reload`.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if key == "live.resync_schedule" {
			if err := scheduler.Validate(value); err != nil {
				return err
			}
		}
		// Load writes the defaults file on first use; SetValue needs it.
		if _, err := config.Load(cfgPath); err != nil {
			return err
		}
		if err := config.SetValue(cfgPath, key, value); err != nil {
			return err
		}
		if config.IsSecretKey(key) {
			value = "***"
		}
		fmt.Printf("%s = %s\n", key, value)
		return nil
	},
}

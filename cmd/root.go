package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Another0Noob/boxd-recommend/internal/config"
	"github.com/Another0Noob/boxd-recommend/internal/logging"
	"github.com/Another0Noob/boxd-recommend/internal/pipeline"
)

var (
	cfgFile  string
	logLevel string

	// cfg is loaded by the root command before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "boxdrec",
	Short: "Collect film watch histories and recommend unseen titles",
	Long: `boxdrec walks a user's watched films on letterboxd.com, keeps an enriched
dataset of every title it has seen, and ranks catalog titles the user is
likely to enjoy from their ratings.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		logging.Init(logging.Config{
			Level:     c.Log.Level,
			Format:    c.Log.Format,
			Caller:    c.Log.Caller,
			Timestamp: true,
		})
		cfg = c
		return nil
	},
}

// Execute runs the root command. Interrupts cancel the running command's
// context so partial merges are still saved.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", pipeline.Explain(err))
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&cfgFile,
		"config",
		"c",
		"",
		"path to config file (.ini, .yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel,
		"log-level",
		"",
		"override log level (debug, info, warn, error)",
	)
}

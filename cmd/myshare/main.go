package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/souvikree/myShare/internal/config"
	"github.com/souvikree/myShare/internal/logging"
)

var (
	envFile string

	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "myshare",
	Short: "myshare - upload a file, get a link",
	Long: "myshare stores uploaded files on disk and hands out download links\n" +
		"that stay valid for the configured retention window.",
	SilenceUsage:      true,
	PersistentPreRunE: initialize,
	RunE:              runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
}

func main() {
	if err := execute(context.Background(), os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// execute runs the command line and closes the log file however the
// command ends. cobra skips post-run hooks when RunE fails.
func execute(ctx context.Context, args []string) error {
	defer closeLog()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func closeLog() {
	if logCloser == nil {
		return
	}
	if err := logCloser.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log: %v\n", err)
	}
	logCloser = nil
}

// initialize loads the dotenv file and the configuration and installs the
// default logger.
func initialize(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	var logger *slog.Logger
	logger, logCloser = logging.New(logging.Options{
		Level:  level,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	slog.SetDefault(logger)

	return nil
}

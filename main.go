package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"proxyrules/core/services"
	"proxyrules/internal/constants"
	"proxyrules/internal/debuglog"
)

var (
	// Global flags
	settingsPath string
	verbose      bool
	logLevel     string
	logFile      string

	logSink *os.File
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "proxyrules",
	Short: "Generate Mihomo, Stash, Loon and Surge configs from one rule catalog",
	Long: `proxyrules classifies subscription node names into regions, builds the
proxy-group catalog from the regions that have enough nodes, and writes a
config for every supported tool with the same groups and remote rule sets.

Settings are read from a JSONC file (default ` + constants.SettingsFileName + `);
flags override them.`,
	Version:       constants.AppVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = debuglog.Sync()
		if logSink != nil {
			debuglog.CloseWithLog("log file", logSink)
			logSink = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&settingsPath, "config", "c", constants.SettingsFileName, "settings file (JSONC)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: off, error, warn, info, verbose, trace")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file (rotated at 2 MB)")

	rootCmd.AddCommand(generateCmd, watchCmd, classifyCmd, resolveCmd)
}

// setupLogging builds the zap logger behind debuglog from the global flags.
func setupLogging(cmd *cobra.Command) error {
	switch {
	case logLevel != "":
		debuglog.GlobalLevel = debuglog.ParseLevel(logLevel)
	case verbose:
		debuglog.GlobalLevel = debuglog.LevelVerbose
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())), zapcore.DebugLevel),
	}
	if logFile != "" {
		f, err := services.OpenLogFileWithRotation(logFile)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logSink = f
		fileEncoder := zap.NewProductionEncoderConfig()
		fileEncoder.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoder), zapcore.AddSync(f), zapcore.DebugLevel))
	}
	debuglog.SetLogger(zap.New(zapcore.NewTee(cores...)))
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

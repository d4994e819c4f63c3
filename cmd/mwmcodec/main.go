package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dyuri/mwmcodec/internal/config"
	"github.com/dyuri/mwmcodec/internal/geometry"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	v         = config.New()
	cfg       *config.Config
	logCloser io.Closer
)

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mwmcodec",
	Short: "Encode map features into compact binary records",
	Long: `mwmcodec is a tool for working with compact map feature records.

It can encode GeoJSON features into single-scale records and back, build
multi-scale datasets with per-zoom simplified geometry, inspect their
records and run spatial queries against the features visible at a zoom.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default: ./mwmcodec.toml if present)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-file", "", "Also write the log to this file")
	rootCmd.PersistentFlags().Int("codepage", 0, "Code page of GeoJSON input (default: UTF-8)")

	bindFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level"))
	bindFlag(config.KeyLogFile, rootCmd.PersistentFlags().Lookup("log-file"))
	bindFlag(config.KeyCodePage, rootCmd.PersistentFlags().Lookup("codepage"))

	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(versionCmd)
}

// bindFlag lets flag override the config key when it is set on the command
// line.
func bindFlag(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		found, err := config.Find(".")
		if err != nil && !errors.Is(err, config.ErrNoConfig) {
			return err
		}
		path = found
	}

	c, err := config.Load(v, path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = c

	closer, err := config.SetupLogging(log.StandardLogger(), c.LogLevel, c.LogFile)
	if err != nil {
		return err
	}
	logCloser = closer

	if path != "" {
		log.WithField("config", path).Debug("config loaded")
	}
	return nil
}

// parseFloats splits a comma separated list of n numbers.
func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma separated numbers, got %q", n, s)
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", p, err)
		}
		out[i] = f
	}
	return out, nil
}

func parseRect(s string) (geometry.Rect, error) {
	f, err := parseFloats(s, 4)
	if err != nil {
		return geometry.Rect{}, err
	}
	if f[0] > f[2] || f[1] > f[3] {
		return geometry.Rect{}, fmt.Errorf("bbox %q: min exceeds max", s)
	}
	return geometry.NewRect(f[0], f[1], f[2], f[3]), nil
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// openOutput returns stdout for an empty path.
func openOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mwmcodec version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
	},
}

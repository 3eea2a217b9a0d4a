// Package cli implements the translingo command line: the HTTP server and
// one-off commands over the same history database and preference store.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tbourn/go-translingo-backend/internal/app"
	"github.com/tbourn/go-translingo-backend/internal/config"
	"github.com/tbourn/go-translingo-backend/internal/sysutil"
)

// persistent flag -> config key; each key also reads its upper-cased
// environment variable.
var globalFlags = []struct{ name, key, usage string }{
	{"db", config.KeyDBPath, "history database path"},
	{"log-level", config.KeyLogLevel, "debug, info, warn, error"},
	{"engine", config.KeyEngine, "translation engine: stub, google, mymemory"},
}

// runner carries state shared by every subcommand.
type runner struct {
	v       *viper.Viper
	version string
	// envFiles are loaded with godotenv before the configuration is read.
	envFiles []string
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	r := &runner{v: viper.New(), version: version}

	root := &cobra.Command{
		Use:   "translingo",
		Short: "Live text translation with history and favorites",
		Long: `translingo translates text between catalog languages.

"serve" runs the HTTP API with debounced translation sessions. The other
commands work directly on the same history database and language selection.

Configuration comes from the environment (optionally a .env file); the
persistent flags override it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	for _, f := range globalFlags {
		pf.String(f.name, "", fmt.Sprintf("%s (env %s)", f.usage, strings.ToUpper(f.key)))
		_ = r.v.BindPFlag(f.key, pf.Lookup(f.name))
	}
	pf.StringSliceVar(&r.envFiles, "env-file", []string{".env"}, "dotenv files to load")

	root.AddCommand(
		newServeCmd(r),
		newTranslateCmd(r),
		newHistoryCmd(r),
		newFavoritesCmd(r),
		newLanguagesCmd(r),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute(version string) {
	root := NewRootCmd(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
		os.Exit(1)
	}
}

// config loads the dotenv files, then the configuration with flag overrides.
func (r *runner) config() (config.Config, error) {
	for _, f := range r.envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return config.Config{}, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}
	return config.LoadFrom(r.v)
}

// open wires the application for a one-off command. Unless a level was
// requested, only warnings reach stderr.
func (r *runner) open(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := r.config()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if !cmd.Flags().Changed("log-level") && os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	sysutil.SetupLogging(level, cfg.LogPretty, cmd.ErrOrStderr())
	return app.New(ctx, cfg, app.Options{SilentSQL: true})
}

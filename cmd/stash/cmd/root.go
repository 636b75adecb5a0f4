package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/stash"
)

var rootCmd = &cobra.Command{
	Use:           "stash",
	Short:         "Budgeted blob cache CLI",
	Long:          "CLI for storing, inspecting and mirroring entries of a stash root.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/stash/config.yaml)")
	flags.String("root", "", "stash root directory (default: user cache dir/stash)")
	flags.String("aggregate-budget", "", "budget shared by all stores, e.g. 50MB (0: unlimited)")
	flags.String("store-budget", "", "budget of each store (default: the aggregate budget)")
	flags.Int("compression", 0, "zstd level for text entries, 1-3 (0: off)")
	flags.BoolP("verbose", "v", false, "log engine activity to stderr")

	viper.BindPFlag("root", flags.Lookup("root"))
	viper.BindPFlag("aggregate_budget", flags.Lookup("aggregate-budget"))
	viper.BindPFlag("store_budget", flags.Lookup("store-budget"))
	viper.BindPFlag("compression", flags.Lookup("compression"))
	viper.BindPFlag("logging", flags.Lookup("verbose"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("STASH")
	viper.AutomaticEnv()
	viper.SetDefault("root", stash.DefaultRoot())
	viper.SetDefault("aggregate_budget", "0")
	viper.SetDefault("store_budget", "")

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "stash")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "stash")
	}
	return ".stash"
}

// parseBytes reads a byte size such as "1.5MB" or "2048" from the config
// key. An empty value reports false.
func parseBytes(key string) (int64, bool, error) {
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return 0, false, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return int64(n), true, nil
}

func openRegistry() (*stash.Registry, error) {
	opts := []stash.Option{
		stash.WithRoot(viper.GetString("root")),
		stash.WithLogging(viper.GetBool("logging")),
		stash.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))),
	}

	aggregate, _, err := parseBytes("aggregate_budget")
	if err != nil {
		return nil, err
	}
	opts = append(opts, stash.WithAggregateBudget(aggregate))

	storeBudget, ok, err := parseBytes("store_budget")
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, stash.WithStoreBudget(storeBudget))
	}

	if level := viper.GetInt("compression"); level > 0 {
		opts = append(opts, stash.WithCompression(level))
	}
	return stash.NewRegistry(opts...)
}

// withStore opens the registry and the named store, runs fn and closes the
// registry.
func withStore(name string, fn func(*stash.Store) error) (err error) {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := reg.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	s, err := reg.Open(name)
	if err != nil {
		return err
	}
	return fn(s)
}

func kindFlag(cmd *cobra.Command) (stash.Kind, error) {
	name, _ := cmd.Flags().GetString("kind")
	if name == "" {
		return 0, nil
	}
	kind, ok := stash.ParseKind(name)
	if !ok {
		return 0, fmt.Errorf("unknown kind %q (jpeg, png, video, audio, object, value)", name)
	}
	return kind, nil
}

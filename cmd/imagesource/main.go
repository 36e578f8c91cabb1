// Command imagesource fetches, describes and plans image addresses from the
// command line.
package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	imagesource "github.com/Skryldev/image-source"
	"github.com/Skryldev/image-source/adapters/vips"
	"github.com/Skryldev/image-source/config"
	"github.com/Skryldev/image-source/core"
	"github.com/Skryldev/image-source/hooks"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

// CLI holds state shared by the subcommands.
type CLI struct {
	v       *viper.Viper
	cfgFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("error: "+err.Error()))
		os.Exit(1)
	}
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	cli := &CLI{v: viper.New()}

	root := &cobra.Command{
		Use:   "imagesource",
		Short: "Resolve image addresses into cached files and decoded images",
		Long: `imagesource resolves opaque image addresses (asset://, dropbox://,
scaled:?src=...) into files in a content-addressed disk cache.

Configuration is read from --config (YAML), then IMAGESOURCE_* environment
variables (e.g. IMAGESOURCE_CACHE_DIR, IMAGESOURCE_REMOTE_BASE_URL), then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cli.cfgFile, "config", "", "YAML config file")
	flags.String("cache-dir", "", "disk cache folder")
	flags.String("asset-root", "", "local asset store folder")
	flags.String("backend", "", "codec backend: stdlib or vips")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("remote-backend", "", "remote byte store: http or s3")
	flags.String("remote-base-url", "", "base URL for the http remote backend")
	flags.Int("workers", 0, "fan-out bound for multiple addresses")

	for key, flag := range map[string]string{
		"cache_dir":       "cache-dir",
		"asset_root":      "asset-root",
		"backend":         "backend",
		"log_level":       "log-level",
		"remote.backend":  "remote-backend",
		"remote.base_url": "remote-base-url",
		"worker_count":    "workers",
	} {
		_ = cli.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		cli.newFetchCommand(),
		cli.newDescribeCommand(),
		newPlanCommand(),
		newAddressCommand(),
	)
	return root
}

// loadConfig layers defaults, the config file, the environment and flags.
func (c *CLI) loadConfig() (config.Config, error) {
	defaults, err := yaml.Marshal(config.Default())
	if err != nil {
		return config.Config{}, err
	}
	c.v.SetConfigType("yaml")
	if err := c.v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return config.Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
		if err := c.v.MergeInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("read %s: %w", c.cfgFile, err)
		}
	}
	c.v.SetEnvPrefix("IMAGESOURCE")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()

	var cfg config.Config
	if err := c.v.Unmarshal(&cfg); err != nil {
		return config.Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, config.Validate(cfg)
}

// newManager builds a Manager from the layered config. The returned cleanup
// shuts down the libvips backend when one was started.
func (c *CLI) newManager(metrics core.MetricsCollector) (*imagesource.Manager, func(), error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := hooks.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	opts := []imagesource.Option{imagesource.WithLogger(logger)}
	if metrics != nil {
		opts = append(opts, imagesource.WithMetrics(metrics))
	}

	cleanup := func() {}
	if cfg.Backend == config.BackendVips {
		backend := vips.NewBackend(vips.BackendConfig{DefaultQuality: cfg.DefaultQuality, MaxWorkers: cfg.WorkerCount})
		reg := core.NewRegistry()
		vips.RegisterVipsBackend(reg, backend)
		opts = append(opts, imagesource.WithCodec(reg, backend))
		cleanup = backend.Shutdown
	}

	m, err := imagesource.New(cfg, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return m, cleanup, nil
}

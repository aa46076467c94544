package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/avlog/internal"
	pkgconfig "github.com/starford/avlog/pkg/config"
)

// loadConfig reads the config file and applies flag overrides. The default
// config path may be missing; an explicitly given one may not.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	configPath := cmd.String("config")

	if cmd.IsSet("config") {
		if err := pkgconfig.Load(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cmd.IsSet("output") {
		cfg.Output.Root = cmd.String("output")
	}
	if cmd.IsSet("mode") {
		cfg.Decode.Mode = cmd.String("mode")
	}
	if cmd.IsSet("workers") {
		cfg.Decode.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("timezone") {
		cfg.Output.Timezone = cmd.String("timezone")
	}
	if cmd.IsSet("index") {
		cfg.Index.Path = cmd.String("index")
	}
	if cmd.IsSet("log-format") {
		cfg.App.LogFormat = cmd.String("log-format")
	}
	if cmd.IsSet("log-level") {
		if err := cfg.App.LogLevel.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
			return nil, fmt.Errorf("log-level: %w", err)
		}
	}
	if cmd.IsSet("port") {
		cfg.HTTP.Port = int(cmd.Int("port"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func convert(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Args().Len() > 1 {
		return errors.New("convert takes at most one input path")
	}
	_, err = internal.Convert(ctx,
		internal.WithConfig(cfg),
		internal.WithInput(cmd.Args().First()),
	)
	return err
}

func watch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Watch(ctx,
		internal.WithConfig(cfg),
		internal.WithInput(cmd.Args().First()),
	)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Serve(ctx,
		internal.WithConfig(cfg),
		internal.WithInput(cmd.String("watch")),
	)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg))
}

func main() {
	cmd := &cli.Command{
		Name:      "avlog",
		Usage:     "Convert captured Teltonika AVL frames into an hour-bucketed JSON tree",
		Version:   internal.Version,
		ArgsUsage: "[INPUT]",
		Action:    convert,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("AVLOG_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output root directory (default: current local time, 2006-01-02T15-04-05)",
				Sources: cli.EnvVars("AVLOG_OUTPUT"),
			},
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "Decode mode: wire or serialized",
				Sources: cli.EnvVars("AVLOG_MODE"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Lines decoded in parallel",
				Sources: cli.EnvVars("AVLOG_WORKERS"),
			},
			&cli.StringFlag{
				Name:    "timezone",
				Usage:   "Zone used for hour buckets and record file names (UTC, Local or IANA name)",
				Sources: cli.EnvVars("AVLOG_TIMEZONE"),
			},
			&cli.StringFlag{
				Name:    "index",
				Usage:   "Path of the SQLite record catalog (disabled when empty)",
				Sources: cli.EnvVars("AVLOG_INDEX"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Sources: cli.EnvVars("AVLOG_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "auto, json or text",
				Sources: cli.EnvVars("AVLOG_LOG_FORMAT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "convert",
				Usage:     "Convert INPUT, or piped stdin, once",
				ArgsUsage: "[INPUT]",
				Action:    convert,
			},
			{
				Name:      "watch",
				Usage:     "Convert INPUT and again whenever it changes",
				ArgsUsage: "INPUT",
				Action:    watch,
			},
			{
				Name:  "serve",
				Usage: "Serve the output tree over HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "watch",
						Usage:   "Capture to convert and follow while serving",
						Sources: cli.EnvVars("AVLOG_WATCH"),
					},
					&cli.IntFlag{
						Name:    "port",
						Usage:   "HTTP port",
						Sources: cli.EnvVars("AVLOG_HTTP_PORT"),
					},
				},
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the output tree to MCP clients over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"vmonitor-agent/internal/agent"
	"vmonitor-agent/internal/config"
	"vmonitor-agent/internal/system"
)

const appName = "vmonitor-agent"

func newApp() *cli.Command {
	return &cli.Command{
		Name:    appName,
		Usage:   "Stream host telemetry to remote collectors",
		Version: config.HardcodedVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				Usage:   "path to the TOML, YAML or JSON config file",
				Sources: cli.EnvVars(config.PathEnv),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level (debug, info, warn, error)",
			},
		},
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the agent in the foreground",
				Action: runAction,
			},
			{
				Name:   "version",
				Usage:  "Print the agent version",
				Action: versionAction,
			},
			{
				Name:   "list",
				Usage:  "List configured endpoints",
				Action: listAction,
			},
			{
				Name:      "add",
				Usage:     "Add an endpoint",
				ArgsUsage: "NAME SERVER SECRET",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "disabled", Usage: "add the endpoint without enabling it"},
				},
				Action: addAction,
			},
			{
				Name:      "remove",
				Usage:     "Remove an endpoint",
				ArgsUsage: "NAME",
				Action:    removeAction,
			},
			{
				Name:      "enable",
				Usage:     "Enable an endpoint",
				ArgsUsage: "NAME",
				Action:    setEnabledAction(true),
			},
			{
				Name:      "disable",
				Usage:     "Disable an endpoint",
				ArgsUsage: "NAME",
				Action:    setEnabledAction(false),
			},
			{
				Name:  "check",
				Usage: "Validate the config file and optionally read one sample",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "sample", Usage: "read and print one metrics snapshot"},
				},
				Action: checkAction,
			},
		},
	}
}

func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if lvl := strings.TrimSpace(cmd.String("log-level")); lvl != "" {
		cfg.LogLevel = strings.ToLower(lvl)
	}
	return cfg, nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := agent.BuildLogger(cfg)
	a, err := agent.New(cfg, logger)
	if err != nil {
		logger.Error("agent initialization failed", "error", err)
		return err
	}
	if err := a.Run(ctx); err != nil {
		logger.Error("agent runtime failed", "error", err)
		return err
	}
	return nil
}

func versionAction(_ context.Context, cmd *cli.Command) error {
	_, err := fmt.Fprintf(cmd.Root().Writer, "%s %s (%s %s/%s)\n", appName, config.HardcodedVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return err
}

func listAction(_ context.Context, cmd *cli.Command) error {
	entries, err := config.ListEndpoints(cmd.String("config"))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSERVER\tENABLED")
	for _, e := range entries {
		ep := config.Endpoint{Name: e.Name, Server: e.Server}
		fmt.Fprintf(tw, "%s\t%s\t%t\n", e.Name, ep.DisplayServer(), e.Enabled)
	}
	return tw.Flush()
}

func addAction(_ context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() != 3 {
		return fmt.Errorf("add: expected NAME SERVER SECRET, got %d arguments", args.Len())
	}
	entry := config.EndpointEntry{
		Name:    args.Get(0),
		Server:  args.Get(1),
		Secret:  config.Secret(args.Get(2)),
		Enabled: !cmd.Bool("disabled"),
	}
	if err := config.AddEndpoint(cmd.String("config"), entry); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.Root().Writer, "endpoint %q added\n", entry.Name)
	return err
}

func removeAction(_ context.Context, cmd *cli.Command) error {
	name, err := singleName(cmd)
	if err != nil {
		return err
	}
	if err := config.RemoveEndpoint(cmd.String("config"), name); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.Root().Writer, "endpoint %q removed\n", name)
	return err
}

func setEnabledAction(enabled bool) cli.ActionFunc {
	return func(_ context.Context, cmd *cli.Command) error {
		name, err := singleName(cmd)
		if err != nil {
			return err
		}
		if err := config.SetEndpointEnabled(cmd.String("config"), name, enabled); err != nil {
			return err
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		_, err = fmt.Fprintf(cmd.Root().Writer, "endpoint %q %s\n", name, state)
		return err
	}
}

func checkAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	fmt.Fprintf(w, "config ok: format=%s interval=%s endpoints=%d enabled=%d\n",
		cfg.Format, cfg.Interval, len(cfg.Endpoints), len(cfg.EnabledEndpoints()))
	for _, ep := range cfg.Endpoints {
		fmt.Fprintf(w, "  %s %s enabled=%t base_delay=%s max_delay=%s max_retries=%d\n",
			ep.Name, ep.DisplayServer(), ep.Enabled, ep.Connection.BaseDelay, ep.Connection.MaxDelay, ep.Connection.MaxRetries)
	}
	if !cmd.Bool("sample") {
		return nil
	}

	readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	metrics, err := system.NewReader(agent.BuildLogger(cfg)).Collect(readCtx)
	if err != nil {
		return fmt.Errorf("read host metrics: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(metrics)
}

func singleName(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("%s: expected NAME, got %d arguments", cmd.Name, cmd.Args().Len())
	}
	return cmd.Args().First(), nil
}

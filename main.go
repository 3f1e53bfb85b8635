package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	godaemon "github.com/sevlyar/go-daemon"
	log "github.com/sirupsen/logrus"
	altsrc "github.com/urfave/cli-altsrc/v3"
	altjson "github.com/urfave/cli-altsrc/v3/json"
	"github.com/urfave/cli/v3"

	"github.com/mahyarmirrashed/filesorter/internal/config"
	"github.com/mahyarmirrashed/filesorter/internal/daemon"
	"github.com/mahyarmirrashed/filesorter/internal/logging"
	"github.com/mahyarmirrashed/filesorter/internal/utils"
	"github.com/mahyarmirrashed/filesorter/internal/watcher"
)

// Set at build time: go build -ldflags "-X main.version=1.2.3"
var version = "dev"

const defaultOptionsFile = "~/.config/filesorter/daemon.json"

// optionsFile is an optional JSON file with defaults for the flags below.
func optionsFile() string {
	if path := os.Getenv("FILESORTER_OPTIONS"); path != "" {
		return path
	}
	path, err := utils.ExpandHome(defaultOptionsFile)
	if err != nil {
		return ""
	}
	return path
}

// sources reads a flag value from its env var, then from the options file.
func sources(env, key string, optionsPath string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(
		cli.EnvVar(env),
		altjson.JSON(key, altsrc.StringSourcer(optionsPath)),
	)
}

func newCommand(opts string) *cli.Command {
	return &cli.Command{
		Name:      "filesorter",
		Usage:     "move new files into folders chosen by extension",
		ArgsUsage: "<path/to/rules.json>",
		Version:   version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "logging level: debug, info, warn, error",
				Sources: sources("FILESORTER_LOG_LEVEL", "log_level", opts),
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "log format: auto, text, json",
				Sources: sources("FILESORTER_LOG_FORMAT", "log_format", opts),
				Value:   logging.FormatAuto,
			},
			&cli.StringFlag{
				Name:    "backend",
				Usage:   "notification backend: auto, inotify, fsnotify",
				Sources: sources("FILESORTER_BACKEND", "backend", opts),
				Value:   watcher.BackendAuto,
			},
			&cli.DurationFlag{
				Name:    "delay",
				Usage:   "settle time before a file counts as written (fsnotify backend)",
				Sources: sources("FILESORTER_DELAY", "delay", opts),
				Value:   watcher.MinSettle,
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Usage:   "log moves without performing them",
				Sources: sources("FILESORTER_DRY_RUN", "dry_run", opts),
			},
			&cli.BoolFlag{
				Name:    "notifications",
				Usage:   "send a desktop notification for every moved file",
				Sources: sources("FILESORTER_NOTIFICATIONS", "notifications", opts),
			},
			&cli.BoolFlag{
				Name:    "daemonize",
				Usage:   "run as daemon",
				Sources: sources("FILESORTER_DAEMONIZE", "daemonize", opts),
			},
			&cli.BoolFlag{
				Name:    "initial-scan",
				Usage:   "sort files already in the watch folder at startup",
				Sources: sources("FILESORTER_INITIAL_SCAN", "initial_scan", opts),
			},
			&cli.StringFlag{
				Name:    "lock-file",
				Usage:   "single-instance lock file (default: <config>.lock)",
				Sources: sources("FILESORTER_LOCK_FILE", "lock_file", opts),
			},
			&cli.BoolFlag{
				Name:  "check",
				Usage: "validate the config file, print its rules and exit",
			},
		},
		Action: run,
	}
}

func main() {
	if err := newCommand(optionsFile()).Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return cli.Exit(fmt.Sprintf("Usage: %s [options] %s", cmd.Name, cmd.ArgsUsage), 2)
	}

	configPath, err := filepath.Abs(cmd.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid config path: %v", err), 2)
	}

	if err := logging.Setup(cmd.String("log-level"), cmd.String("log-format"), os.Stderr); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	if cmd.Bool("check") {
		cfg, err := config.NewStore(configPath).Load()
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to load config: %v", err), 1)
		}
		config.RenderRules(cmd.Root().Writer, cfg)
		return nil
	}

	d, err := daemon.New(daemon.Options{
		ConfigPath:    configPath,
		Backend:       cmd.String("backend"),
		Delay:         cmd.Duration("delay"),
		DryRun:        cmd.Bool("dry-run"),
		Notifications: cmd.Bool("notifications"),
		InitialScan:   cmd.Bool("initial-scan"),
		LockFile:      cmd.String("lock-file"),
	})
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	// Only daemonize if asked to
	if cmd.Bool("daemonize") {
		daemonCtx := &godaemon.Context{
			PidFileName: "filesorter.pid",
			PidFilePerm: 0644,
			LogFileName: "filesorter.log",
			LogFilePerm: 0640,
			WorkDir:     "./",
			Umask:       027,
			Args:        append([]string{"[filesorter]"}, os.Args[1:]...),
		}

		child, err := daemonCtx.Reborn()
		if err != nil {
			return cli.Exit(fmt.Sprintf("Unable to run: %v", err), 1)
		}
		if child != nil {
			return nil // Parent process exits
		}
		defer func() {
			if err := daemonCtx.Release(); err != nil {
				log.Warnf("Error removing PID file: %v", err)
			}
		}()
		log.Info("Daemon started")
	} else {
		log.Info("Running in foreground (not daemonized)")
	}

	if err := d.Run(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("filesorter: %v", err), 1)
	}
	return nil
}

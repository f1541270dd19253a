package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"alpenroot/internal/config"
	"alpenroot/internal/drivers/hostpkg"
	"alpenroot/internal/emulation"
	"alpenroot/internal/entry"
	"alpenroot/internal/fetch"
	"alpenroot/internal/logging"
	"alpenroot/internal/mounts"
	"alpenroot/internal/preflight"
	"alpenroot/internal/provision"
	"alpenroot/internal/rootfs"
)

const defaultLogLevel = "info"

// version is injected at build time.
var version = "dev"

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	logger := logging.NewCLI(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(logger, &levelVar)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("command interrupted", "error", err)
			os.Exit(130)
		}
		logger.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand(logger *slog.Logger, levelVar *slog.LevelVar) *cobra.Command {
	logLevel := defaultLogLevel

	root := &cobra.Command{
		Use:           "alpenroot",
		Short:         "Bootstrap an Alpine Linux chroot, with optional QEMU user-mode emulation",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "Set log verbosity (debug, info, warning, error)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := parseLogLevel(logLevel)
		if err != nil {
			return err
		}
		if levelVar != nil {
			levelVar.Set(level)
		}
		return nil
	}

	root.AddCommand(
		newProvisionCommand(logger),
		newEnterCommand(),
		newVersionCommand(),
	)
	return root
}

func newProvisionCommand(logger *slog.Logger) *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Fetch, verify, and install an Alpine root filesystem into a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(cmd.Context(), logger, v)
		},
	}

	flags := cmd.Flags()
	flags.StringP("arch", "a", "", "Target architecture (default: host architecture)")
	flags.StringP("branch", "b", config.DefaultBranch, "Alpine branch to install")
	flags.StringP("root", "d", "", "Absolute path of the target root directory")
	flags.StringP("bind-dir", "i", "", "Host directory to bind-mount into the root (default: current directory)")
	flags.StringSliceP("keep-vars", "k", config.DefaultKeepVars, "Environment variable patterns to pass through the entry script")
	flags.StringP("mirror", "m", config.DefaultMirror, "Alpine package mirror URI")
	flags.StringSliceP("packages", "p", config.DefaultPackages, "Packages to install into the root")
	flags.StringSliceP("extra-repos", "r", nil, "Additional repository URIs")
	flags.StringP("temp-dir", "t", "", "Directory for downloaded bootstrap artifacts")

	for _, name := range []string{
		"arch", "branch", "root", "bind-dir", "keep-vars",
		"mirror", "packages", "extra-repos", "temp-dir",
	} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	return cmd
}

func runProvision(ctx context.Context, logger *slog.Logger, v *viper.Viper) error {
	if err := preflight.RequireRoot(); err != nil {
		return err
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}

	checker := &preflight.Checker{Logger: logger}
	if err := checker.CheckNetwork(); err != nil {
		return err
	}

	service := &provision.Service{
		Logger:  logger,
		Config:  cfg,
		Fetcher: &fetch.HTTPFetcher{Logger: logger},
		Resolver: &emulation.Resolver{
			Logger: logger,
		},
		Installer: &hostpkg.AptInstaller{Logger: logger},
		Init: &rootfs.Initializer{
			Logger: logger,
			Runner: rootfs.ExecRunner{},
		},
		Binder: &mounts.Binder{
			Logger:  logger,
			Mounter: mounts.UnixMounter{},
		},
		Scripts: &entry.Generator{Logger: logger},
		Entry:   provision.ScriptRunner{},
		Invoker: provision.InvokerFromEnviron(os.Environ()),
	}
	return service.Run(ctx)
}

func newEnterCommand() *cobra.Command {
	var (
		rootDir string
		user    string
	)

	cmd := &cobra.Command{
		Use:   "enter [-u user] [command...]",
		Short: "Enter a previously provisioned root through its entry script",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rootDir == "" {
				rootDir = os.Getenv(config.EnvPrefix + "_ROOT")
			}
			if rootDir == "" {
				return fmt.Errorf("target root is required (--root or %s_ROOT)", config.EnvPrefix)
			}

			script := filepath.Join(rootDir, entry.ScriptName)
			if _, err := os.Stat(script); err != nil {
				return fmt.Errorf("entry script: %w (run 'alpenroot provision' first)", err)
			}

			// Replaces this process so the command's exit status
			// propagates unchanged.
			argv := enterArgv(script, user, args)
			if err := unix.Exec(script, argv, os.Environ()); err != nil {
				return fmt.Errorf("exec %s: %w", script, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&rootDir, "root", "d", "", "Absolute path of the provisioned root directory")
	cmd.Flags().StringVarP(&user, "user", "u", "", "User to log in as inside the root (default: root)")
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// enterArgv assembles the entry-script argument vector. The user option is
// forwarded as the script's own -u option, ahead of the command line.
func enterArgv(script, user string, args []string) []string {
	argv := []string{script}
	if user != "" {
		argv = append(argv, "-u", user)
	}
	return append(argv, args...)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the alpenroot version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "alpenroot "+version)
		},
	}
}

func parseLogLevel(value string) (slog.Level, error) {
	switch value {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warning", "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", value)
	}
}

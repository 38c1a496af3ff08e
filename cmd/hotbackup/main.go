// Command hotbackup is a minimal driver around pkg/hotbackup: it runs one
// point-in-time backup of a source tree into a destination tree and exits.
// It is not the syscall interception shim described in the engine's own
// documentation — it only demonstrates DoBackup against a tree nothing else
// is mutating, plus config init.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/paulschiretz/hotbackup/pkg/config"
	"github.com/paulschiretz/hotbackup/pkg/hotbackup"
	"github.com/paulschiretz/hotbackup/pkg/plog"
)

const appName = "hotbackup"

var version = "dev"

type action int

const (
	actionRunBackup action = iota
	actionInitConfig
	actionShowVersion
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s (version %s):\n", appName, version)
		fmt.Fprintf(flag.CommandLine.Output(), "Runs one point-in-time backup of -source into -target.\n\n")
		flag.PrintDefaults()
	}
}

type parsedFlags struct {
	source  string
	target  string
	quiet   bool
	init    bool
	version bool
}

func parseFlags() parsedFlags {
	sourceFlag := flag.String("source", "", "Source directory to copy from")
	targetFlag := flag.String("target", "", "Destination directory to copy into (must exist and be empty)")
	quietFlag := flag.Bool("quiet", false, "Suppress progress output")
	initFlag := flag.Bool("init", false, "Write a default config file into -target and exit")
	versionFlag := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	return parsedFlags{
		source:  *sourceFlag,
		target:  *targetFlag,
		quiet:   *quietFlag,
		init:    *initFlag,
		version: *versionFlag,
	}
}

func configPath(targetDir string) string {
	return filepath.Join(targetDir, "hotbackup.conf")
}

func runInit(f parsedFlags) error {
	if f.target == "" {
		return fmt.Errorf("the -target flag is required for -init")
	}
	return config.Save(configPath(f.target), config.NewDefault())
}

func runBackup(ctx context.Context, f parsedFlags) error {
	if f.source == "" {
		return fmt.Errorf("the -source flag is required")
	}
	if f.target == "" {
		return fmt.Errorf("the -target flag is required")
	}

	cfg, err := config.Load(configPath(f.target))
	if err != nil {
		return fmt.Errorf("failed to load config from target: %w", err)
	}

	plog.SetQuiet(f.quiet)

	mgr := hotbackup.NewManager(cfg)
	callbacks := &cliCallbacks{throttle: cfg.Throttle()}

	start := time.Now()
	err = mgr.DoBackup(ctx, f.source, f.target, callbacks)
	duration := time.Since(start).Round(time.Millisecond)
	if err != nil {
		return err
	}
	plog.Info(appName+" finished successfully", "duration", duration)
	return nil
}

// cliCallbacks prints progress to stdout via plog and never throttles
// beyond what the loaded config specifies. A real interception layer would
// supply its own Callbacks; this one exists so the demo binary can drive
// DoBackup end to end.
type cliCallbacks struct {
	throttle int64
}

func (c *cliCallbacks) Poll(fraction float64, message string) int {
	plog.Info(appName+": progress", "fraction", fraction, "message", message)
	return 0
}

func (c *cliCallbacks) ReportError(errno int, message string) {
	plog.Error(appName+": backup error", "errno", errno, "message", message)
}

func (c *cliCallbacks) GetThrottle() int64 { return c.throttle }

func run(ctx context.Context) error {
	f := parseFlags()

	if f.version {
		fmt.Printf("%s version %s\n", appName, version)
		return nil
	}
	if f.init {
		return runInit(f)
	}
	return runBackup(ctx, f)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx); err != nil {
		plog.Error(appName+" exited with error", "error", err)
		os.Exit(1)
	}
}

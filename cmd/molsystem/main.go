// Command molsystem inspects, compares and archives tables kept in
// molsystem SQLite databases.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/arkilian/molsystem/internal/config"
	"github.com/arkilian/molsystem/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

// CLI defines the command-line interface for molsystem.
type CLI struct {
	// Global flags
	Config  string `name:"config" short:"c" help:"Path to configuration file (YAML or JSON)" type:"path"`
	DataDir string `name:"data-dir" help:"Base directory for databases and the local archive"`
	Format  string `name:"format" short:"f" enum:"text,json,yaml" default:"text" help:"Output format (text, json, yaml)"`

	Show       ShowCmd       `cmd:"" help:"Print a table"`
	Column     ColumnCmd     `cmd:"" help:"Print the values of one attribute"`
	Attributes AttributesCmd `cmd:"" help:"Describe the attributes of a table"`
	History    HistoryCmd    `cmd:"" help:"List the recorded schema versions of a table"`
	Diff       DiffCmd       `cmd:"" help:"Report how one table differs from another (exit 1 when different)"`
	Equal      EqualCmd      `cmd:"" help:"Compare two tables (exit 1 when different)"`
	Archive    ArchiveGroup  `cmd:"" help:"Snapshot archive operations"`
	Version    VersionCmd    `cmd:"" help:"Print version information"`
}

// ArchiveGroup contains snapshot archive operations.
type ArchiveGroup struct {
	Save ArchiveSaveCmd `cmd:"" help:"Snapshot a table into the archive"`
	Load ArchiveLoadCmd `cmd:"" help:"Print an archived snapshot"`
	List ArchiveListCmd `cmd:"" help:"List archived snapshots"`
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(env *Env) error {
	fmt.Fprintf(env.Out, "molsystem version %s (commit: %s)\n", version, commit)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("molsystem"),
		kong.Description("Inspect, compare and archive molsystem tables"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	cfg, err := loadConfig(cli.Config, cli.DataDir)
	ctx.FatalIfErrorf(err)

	logger, err := logging.New(cfg.Log)
	ctx.FatalIfErrorf(err)
	defer logger.Sync()

	env := &Env{Config: cfg, Logger: logger, Out: os.Stdout, Format: cli.Format}
	err = ctx.Run(env)
	if errors.Is(err, errDifferent) {
		logger.Sync()
		os.Exit(1)
	}
	if err != nil {
		logger.Debug("molsystem: command failed", zap.Error(err))
	}
	ctx.FatalIfErrorf(err)
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	config.LoadFromEnv(cfg)

	// Apply command line flags (highest priority)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Command paddock hosts a registry of configurable agents behind one
// HTTP surface.
//
// Usage:
//
//	paddock serve --config paddock.yaml --agents-dir ./agents
//	paddock validate --config paddock.yaml
//	paddock schema > agent.schema.json
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/paddockai/paddock/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the agent hosting server."`
	Validate ValidateCmd `cmd:"" help:"Validate the service config and every agent config."`
	Schema   SchemaCmd   `cmd:"" help:"Print the agent config JSON Schema."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to the service config file." type:"path"`
	AgentsDir string `help:"Agents directory (overrides the config file)." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple, verbose, or json)." default:"simple"`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("paddock version %s\n", resolveVersion())
	return nil
}

func resolveVersion() string {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	return version
}

func main() {
	// A missing .env is fine; explicit config wins over it.
	_ = godotenv.Load()

	var cli CLI
	ktx := kong.Parse(&cli,
		kong.Name("paddock"),
		kong.Description("Multi-tenant agent hosting service."),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Init(level, os.Stderr, cli.LogFormat)

	if err := ktx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

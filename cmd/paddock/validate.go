package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paddockai/paddock/pkg/config"
)

// ValidateCmd checks the service config and every agent config file,
// reporting every problem instead of stopping at the first.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := loadServiceConfig(cli)
	if err != nil {
		return err
	}
	fmt.Printf("Service config: OK (agents dir %s)\n", cfg.AgentsDir)

	entries, err := os.ReadDir(cfg.AgentsDir)
	if os.IsNotExist(err) {
		fmt.Println("Agents dir does not exist; the registry will start empty.")
		return nil
	}
	if err != nil {
		return err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	failures := 0
	paths := make(map[string]string)
	for _, name := range names {
		agentCfg, err := config.LoadAgentFile(filepath.Join(cfg.AgentsDir, name))
		if err != nil {
			fmt.Printf("  %s: %v\n", name, err)
			failures++
			continue
		}
		if other, dup := paths[agentCfg.Path]; dup {
			fmt.Printf("  %s: duplicate path %q (also in %s)\n", name, agentCfg.Path, other)
			failures++
			continue
		}
		paths[agentCfg.Path] = name
		fmt.Printf("  %s: OK (path %s)\n", name, agentCfg.Path)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d agent configs failed validation", failures, len(names))
	}
	fmt.Printf("%d agent configs validated.\n", len(names))
	return nil
}

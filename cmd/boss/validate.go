package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/atlanticdynamic/boss/internal/apps/manifest"
	"github.com/atlanticdynamic/boss/internal/config"
	"github.com/urfave/cli/v3"
)

var validateCmd = &cli.Command{
	Name:    "validate",
	Aliases: []string{"lint"},
	Usage:   "Validate the config, mappings, and app manifests",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to the JSON configuration file",
			Aliases: []string{"c"},
		},
		&cli.StringFlag{
			Name:    "mappings",
			Usage:   "Path to the switch mappings file",
			Aliases: []string{"m"},
		},
	},
	Suggest: true,
	Action:  validateAction,
}

func validateAction(_ context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if configPath == "" {
		if cmd.Args().Len() > 0 {
			configPath = cmd.Args().Get(0)
		} else {
			configPath = config.ResolvePath("")
		}
	}

	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Printf("Configuration file %s is valid\n", configPath)

	mappings, err := validateMappings(
		config.ResolveMappingsPath(cmd.String("mappings"), configPath))
	if err != nil {
		return err
	}

	broken, err := validateManifests(cfg, mappings)
	if err != nil {
		return err
	}
	if broken > 0 {
		return fmt.Errorf("%d app manifest(s) failed validation", broken)
	}
	return nil
}

func validateMappings(path string) (*config.Mappings, error) {
	mappings, err := config.LoadMappings(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Printf("No mappings file at %s (all switch values unmapped)\n", path)
			return &config.Mappings{Apps: map[int]string{}}, nil
		}
		return nil, fmt.Errorf("failed to load mappings: %w", err)
	}
	fmt.Printf("Mappings file %s is valid (%d mapped values)\n", path, len(mappings.Apps))
	return mappings, nil
}

// validateManifests loads every app manifest under apps_directory and prints
// a per-app report. It returns the number of invalid manifests.
func validateManifests(cfg *config.Config, mappings *config.Mappings) (int, error) {
	entries, err := os.ReadDir(cfg.System.AppsDirectory)
	if err != nil {
		return 0, fmt.Errorf("failed to read apps directory: %w", err)
	}

	var report strings.Builder
	report.WriteString("\nApp Manifests:\n")

	available := map[string]bool{}
	broken := 0
	appCount := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		appDir := filepath.Join(cfg.System.AppsDirectory, name)
		if _, err := os.Stat(filepath.Join(appDir, manifest.FileName)); err != nil {
			continue
		}
		appCount++

		m, err := manifest.Load(appDir, cfg.System.AppTimeoutSeconds)
		if err != nil {
			broken++
			report.WriteString(fmt.Sprintf("- %s: INVALID: %v\n", name, err))
			continue
		}
		available[name] = true
		report.WriteString(fmt.Sprintf("- %s: ok (%s, timeout %ds/%s)\n",
			name, m.Version, m.TimeoutSeconds, m.TimeoutBehavior))
		for _, w := range m.Warnings {
			report.WriteString(fmt.Sprintf("  warning: %s\n", w))
		}
	}
	if appCount == 0 {
		report.WriteString("- none found\n")
	}

	// Mappings that point at nothing loadable are worth flagging here even
	// though the runtime tolerates them.
	values := make([]int, 0, len(mappings.Apps))
	for value := range mappings.Apps {
		values = append(values, value)
	}
	sort.Ints(values)
	for _, value := range values {
		name := mappings.Apps[value]
		if !available[name] {
			report.WriteString(fmt.Sprintf("- warning: switch value %d maps to unavailable app %q\n", value, name))
		}
	}

	fmt.Print(report.String())
	return broken, nil
}

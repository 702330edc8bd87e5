package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-ai/conduit/internal/config"
	"github.com/conduit-ai/conduit/internal/provider"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured providers and their models",
	RunE:  runModels,
}

func runModels(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir("")
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}

	settings := make(map[string]provider.Settings, len(cfg.Provider))
	for id, pc := range cfg.Provider {
		if pc.Disabled {
			continue
		}
		settings[id] = provider.Settings{
			APIKey:    pc.APIKey,
			BaseURL:   pc.BaseURL,
			Model:     pc.Model,
			MaxTokens: pc.MaxTokens,
		}
	}

	providers, err := provider.Initialize(context.Background(), settings, cfg.Model)
	if err != nil {
		return err
	}

	list := providers.List()
	if len(list) == 0 {
		fmt.Println("No providers configured. Set ANTHROPIC_API_KEY or OPENAI_API_KEY, or add a provider to conduit.json.")
		return nil
	}

	for _, p := range list {
		fmt.Printf("%s (%s)\n", p.Name(), p.ID())
		for _, m := range p.Models() {
			marker := " "
			if cfg.Model == p.ID()+"/"+m.ID {
				marker = "*"
			}
			fmt.Printf("  %s %s/%s\n", marker, p.ID(), m.ID)
		}
	}
	return nil
}

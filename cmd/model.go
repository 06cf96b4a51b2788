package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/seaturtle/internal/models"
)

func modelCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "model",
		Short: "Browse the model registry",
	}

	c.AddCommand(&cobra.Command{
		Use:   "list [provider]",
		Short: "List known models, optionally filtered by provider",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := ""
			if len(args) > 0 {
				provider = strings.ToLower(args[0])
			}
			list := models.List(provider)
			if len(list) == 0 {
				return fmt.Errorf("no models for provider %q (providers: %s)",
					provider, strings.Join(models.SupportedProviders, ", "))
			}
			fmt.Println(models.FormatList(list))
			return nil
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "info <name>",
		Short: "Show one model's pricing and context window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, ok := models.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown model %q", args[0])
			}
			fmt.Printf("Model:    %s\n", info.Name)
			fmt.Printf("Provider: %s\n", info.Provider)
			fmt.Printf("Context:  %d tokens\n", info.ContextWindow)
			fmt.Printf("Pricing:  $%.3f in / $%.3f out per 1M tokens\n",
				info.InputPricePer1M, info.OutputPricePer1M)
			fmt.Printf("Notes:    %s\n", info.Description)
			return nil
		},
	})

	return c
}

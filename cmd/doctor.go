package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/seaturtle/internal/config"
	"github.com/nextlevelbuilder/seaturtle/internal/models"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("seaturtle doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := config.ResolvePath(cfgFile)
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config invalid: %s\n", err)
	}

	fmt.Println()
	fmt.Println("  Providers:")
	for _, provider := range models.SupportedProviders {
		checkProvider(provider, cfg.ProviderKey(provider))
	}

	fmt.Println()
	fmt.Println("  Agents:")
	for _, id := range cfg.AgentIDs() {
		agent, _ := cfg.ResolveAgent(id)
		var bindings []string
		if config.ResolveSecret(agent.Telegram.BotToken, agent.Telegram.BotTokenEnv) != "" {
			bindings = append(bindings, "telegram")
		}
		if config.ResolveSecret(agent.Discord.BotToken, agent.Discord.BotTokenEnv) != "" {
			bindings = append(bindings, "discord")
		}
		detail := "no channels"
		if len(bindings) > 0 {
			detail = strings.Join(bindings, ", ")
		}
		fmt.Printf("    %-12s model=%s sandbox=%s (%s)", id+":", agent.Model, agent.Sandbox, detail)
		if _, err := os.Stat(agent.Workspace); err != nil {
			fmt.Print(" workspace MISSING")
		}
		fmt.Println()
	}

	fmt.Println()
	fmt.Println("  External Tools:")
	checkBinary("git")
	checkBinary("curl")

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkProvider(name, apiKey string) {
	if apiKey == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	masked := "****"
	if len(apiKey) > 8 {
		masked = apiKey[:4] + strings.Repeat("*", len(apiKey)-8) + apiKey[len(apiKey)-4:]
	}
	fmt.Printf("    %-12s %s\n", name+":", masked)
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-12s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-12s %s\n", name+":", path)
	}
}

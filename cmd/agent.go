package cmd

import (
	"fmt"
	"strings"

	runewidth "github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/seaturtle/internal/config"
)

func agentCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "agent",
		Short: "Inspect configured agents",
	}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.ResolvePath(cfgFile))
			if err != nil {
				return err
			}
			printAgentTable(cfg)
			return nil
		},
	})
	return c
}

func printAgentTable(cfg *config.Config) {
	header := []string{"ID", "NAME", "MODEL", "SANDBOX", "CHANNELS"}
	rows := [][]string{}
	for _, id := range cfg.AgentIDs() {
		agent, _ := cfg.ResolveAgent(id)
		var chs []string
		if config.ResolveSecret(agent.Telegram.BotToken, agent.Telegram.BotTokenEnv) != "" {
			chs = append(chs, "telegram")
		}
		if config.ResolveSecret(agent.Discord.BotToken, agent.Discord.BotTokenEnv) != "" {
			chs = append(chs, "discord")
		}
		channels := strings.Join(chs, ",")
		if channels == "" {
			channels = "-"
		}
		idCell := id
		if id == cfg.Global.DefaultAgent {
			idCell = id + " *"
		}
		rows = append(rows, []string{idCell, agent.Name, agent.Model, agent.Sandbox, channels})
	}
	printTable(header, rows)
}

// printTable renders rows with display-width-aware padding. Agent and
// human names are often CJK, where len() over-counts nothing and
// under-pads everything.
func printTable(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	printRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = runewidth.FillRight(cell, widths[i])
		}
		fmt.Println(strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	printRow(header)
	total := 0
	for _, w := range widths {
		total += w + 2
	}
	fmt.Println(strings.Repeat("-", total-2))
	for _, row := range rows {
		printRow(row)
	}
}

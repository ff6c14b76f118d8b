package cli

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/mgpai22/subauto/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with keys masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	}
	defaults := config.Default()
	if err := config.Save(configPath, &defaults); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", configPath)
	fmt.Println("Set an API key under [api_keys] or in the environment, e.g. GEMINI_API_KEY.")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	shown := *cfg
	shown.Keys = config.Keys{
		Gemini:     maskKey(cfg.Keys.Gemini),
		OpenAI:     maskKey(cfg.Keys.OpenAI),
		Anthropic:  maskKey(cfg.Keys.Anthropic),
		OpenRouter: maskKey(cfg.Keys.OpenRouter),
		Groq:       maskKey(cfg.Keys.Groq),
	}
	out, err := toml.Marshal(shown)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	fmt.Printf("# %s\n%s", configPath, out)
	return nil
}

func maskKey(key string) string {
	switch {
	case key == "":
		return ""
	case len(key) <= 8:
		return "****"
	default:
		return key[:4] + "****" + key[len(key)-4:]
	}
}

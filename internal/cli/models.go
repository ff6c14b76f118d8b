package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subauto/internal/translate"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Check the provider connection and list its models",
	Long: `Connect to the provider with the configured credentials and list the
models it offers. With --model the model is also checked to exist.

Examples:
  subauto models
  subauto models --provider openrouter
  subauto models --provider ollama --model llama3.2`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)

	modelsCmd.Flags().String("provider", "", "Provider: "+providerList())
	modelsCmd.Flags().String("model", "", "Model to check")
}

func runModels(cmd *cobra.Command, args []string) error {
	providerStr := cfg.LLM.Provider
	if v, _ := cmd.Flags().GetString("provider"); v != "" {
		providerStr = v
	}
	provider, err := translate.ParseProvider(providerStr)
	if err != nil {
		return err
	}
	model, _ := cmd.Flags().GetString("model")

	t, err := translate.Factory(cmd.Context(), provider, cfg.APIKey(provider), cfg.TranslateOptions(provider))
	if err != nil {
		return err
	}
	if c, ok := t.(io.Closer); ok {
		defer c.Close()
	}

	if err := translate.Validate(cmd.Context(), t, model); err != nil {
		return err
	}
	models, err := translate.ListModels(cmd.Context(), t)
	if err != nil {
		return err
	}

	fmt.Printf("Connected to %s, %d models available.\n", provider, len(models))
	fmt.Println(renderTable([]string{"Model", "Name", "Input limit", "Output limit"}, modelRows(models), 2, 3))
	return nil
}

func modelRows(models []translate.ModelInfo) [][]string {
	rows := make([][]string, 0, len(models))
	for _, m := range models {
		rows = append(rows, []string{m.ID, m.DisplayName, limit(m.InputTokenLimit), limit(m.OutputTokenLimit)})
	}
	return rows
}

func limit(n int) string {
	if n <= 0 {
		return "-"
	}
	return formatCount(n)
}

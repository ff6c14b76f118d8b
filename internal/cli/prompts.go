package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subauto/internal/prompts"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage translation prompts",
	Long: `Manage the prompt library. Built-in presets are read-only; saved prompts
live in paths.prompts_file and are selected with --preset or "prompts use".`,
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in and saved prompts",
	Args:  cobra.NoArgs,
	RunE:  runPromptsList,
}

var promptsShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Print the rules of a prompt, the active one by default",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPromptsShow,
}

var promptsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Save a prompt, replacing a saved one with the same name",
	Long: `Save a prompt. Rules come from --rule flags or from --file ("-" reads
stdin), one rule per line. Rules may use {source_lang} and {target_lang}.`,
	Args: cobra.ExactArgs(1),
	RunE: runPromptsAdd,
}

var promptsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved prompt",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromptsDelete,
}

var promptsUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a prompt the default for every run",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromptsUse,
}

var promptsDuplicateCmd = &cobra.Command{
	Use:   "duplicate <source> <name>",
	Short: "Copy a prompt under a new name",
	Args:  cobra.ExactArgs(2),
	RunE:  runPromptsDuplicate,
}

var promptsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the built-in prompts",
	Args:  cobra.NoArgs,
	RunE:  runPromptsReset,
}

func init() {
	rootCmd.AddCommand(promptsCmd)
	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsShowCmd)
	promptsCmd.AddCommand(promptsAddCmd)
	promptsCmd.AddCommand(promptsDeleteCmd)
	promptsCmd.AddCommand(promptsUseCmd)
	promptsCmd.AddCommand(promptsDuplicateCmd)
	promptsCmd.AddCommand(promptsResetCmd)

	promptsAddCmd.Flags().StringArrayP("rule", "r", nil, "A style rule (repeatable)")
	promptsAddCmd.Flags().StringP("file", "f", "", "Read rules from a file, one per line")
	promptsAddCmd.Flags().StringP("description", "d", "", "Short description")
	promptsAddCmd.Flags().Bool("use", false, "Make the prompt active after saving")
}

func openPrompts() (*prompts.Library, error) {
	return prompts.Open(cfg.Paths.PromptsFile, logger)
}

// resolvePrompt picks the prompt for a run. An unreadable library still
// serves the built-in presets.
func resolvePrompt(name string) (prompts.Prompt, error) {
	lib, err := openPrompts()
	if err != nil {
		logger.Warnw("prompt library unavailable, using built-in presets", "error", err)
		lib = prompts.Builtin(logger)
	}
	return lib.Resolve(name)
}

func runPromptsList(cmd *cobra.Command, args []string) error {
	lib, err := openPrompts()
	if err != nil {
		return err
	}
	fmt.Println(renderTable(
		[]string{"", "Name", "Kind", "Rules", "Description"},
		promptRows(lib.List(), lib.Active().Name),
		3,
	))
	return nil
}

func promptRows(list []prompts.Prompt, active string) [][]string {
	rows := make([][]string, 0, len(list))
	for _, p := range list {
		marker := ""
		if p.Name == active {
			marker = "*"
		}
		kind := "saved"
		if p.Locked {
			kind = "built-in"
		}
		if p.Validate() != nil {
			kind += " (invalid)"
		}
		rows = append(rows, []string{
			marker,
			p.Name,
			kind,
			fmt.Sprintf("%d", len(p.RuleList())),
			truncate(p.Description, 50),
		})
	}
	return rows
}

func runPromptsShow(cmd *cobra.Command, args []string) error {
	lib, err := openPrompts()
	if err != nil {
		return err
	}
	p := lib.Active()
	if len(args) == 1 {
		if p, err = lib.Get(args[0]); err != nil {
			return err
		}
	}
	fmt.Printf("%s", p.Name)
	if p.Description != "" {
		fmt.Printf(" - %s", p.Description)
	}
	fmt.Println()
	for i, rule := range p.RuleList() {
		fmt.Printf("%d. %s\n", i+1, rule)
	}
	if err := p.Validate(); err != nil {
		fmt.Printf("\nwarning: %v\n", err)
	}
	return nil
}

func runPromptsAdd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	ruleFlags, _ := flags.GetStringArray("rule")
	file, _ := flags.GetString("file")
	description, _ := flags.GetString("description")
	use, _ := flags.GetBool("use")

	rules, err := readRules(ruleFlags, file, cmd.InOrStdin())
	if err != nil {
		return err
	}

	lib, err := openPrompts()
	if err != nil {
		return err
	}
	p := prompts.Prompt{Name: args[0], Description: description, Rules: rules}
	if err := lib.Save(p); err != nil {
		return err
	}
	name := prompts.NormalizeName(args[0])
	if use {
		if err := lib.Use(name); err != nil {
			return err
		}
	}
	fmt.Printf("Saved prompt %s to %s\n", name, lib.Path())
	return nil
}

// readRules joins --rule flags, or reads a rules file. Exactly one source
// must be given.
func readRules(ruleFlags []string, file string, stdin io.Reader) (string, error) {
	switch {
	case len(ruleFlags) > 0 && file != "":
		return "", errors.New("use either --rule or --file, not both")
	case len(ruleFlags) > 0:
		return strings.Join(ruleFlags, "\n"), nil
	case file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read rules from stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read rules: %w", err)
		}
		return string(data), nil
	default:
		return "", errors.New("no rules given: use --rule or --file")
	}
}

func runPromptsDelete(cmd *cobra.Command, args []string) error {
	lib, err := openPrompts()
	if err != nil {
		return err
	}
	if err := lib.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted prompt %s\n", prompts.NormalizeName(args[0]))
	return nil
}

func runPromptsUse(cmd *cobra.Command, args []string) error {
	lib, err := openPrompts()
	if err != nil {
		return err
	}
	if err := lib.Use(args[0]); err != nil {
		return err
	}
	fmt.Printf("Active prompt: %s\n", lib.ActiveName())
	if cfg.LLM.Preset != "" && cfg.LLM.Preset != lib.ActiveName() {
		fmt.Printf("note: llm.preset = %q in %s still takes precedence\n", cfg.LLM.Preset, configPath)
	}
	return nil
}

func runPromptsDuplicate(cmd *cobra.Command, args []string) error {
	lib, err := openPrompts()
	if err != nil {
		return err
	}
	if err := lib.Duplicate(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Copied %s to %s\n", prompts.NormalizeName(args[0]), prompts.NormalizeName(args[1]))
	return nil
}

func runPromptsReset(cmd *cobra.Command, args []string) error {
	lib, err := openPrompts()
	if err != nil {
		return err
	}
	if err := lib.ResetDefaults(); err != nil {
		return err
	}
	fmt.Println("Built-in prompts restored.")
	return nil
}

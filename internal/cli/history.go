package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subauto/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past translation sessions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [id...]",
	Short: "Delete sessions by id",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHistoryDelete,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all sessions",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClear,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)

	historyListCmd.Flags().IntP("limit", "n", 20, "Number of sessions to show")
}

func openHistoryStrict() (*history.Store, error) {
	return history.Open(cfg.Paths.HistoryFile)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStrict()
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No translation history.")
		return nil
	}
	fmt.Println(renderTable(
		[]string{"ID", "Date", "File", "Languages", "Model", "Lines", "Tokens", "Cost", "Time", "Status"},
		historyRows(entries),
		5, 6, 7, 8,
	))
	return nil
}

func historyRows(entries []history.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := string(e.Status)
		if e.Error != "" {
			status += ": " + truncate(e.Error, 40)
		}
		rows = append(rows, []string{
			e.ID[:min(8, len(e.ID))],
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			e.SourceName(),
			e.SourceLanguage + " -> " + e.TargetLanguage,
			e.Provider + "/" + e.Model,
			fmt.Sprintf("%d/%d", e.LinesTranslated, e.TotalLines),
			formatCount(e.TotalTokens()),
			formatCost(e.EstimatedCost),
			e.Duration.Round(time.Second).String(),
			status,
		})
	}
	return rows
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStrict()
	if err != nil {
		return err
	}
	defer store.Close()

	ids, err := expandHistoryIDs(cmd, store, args)
	if err != nil {
		return err
	}
	n, err := store.Delete(cmd.Context(), ids...)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d session(s).\n", n)
	return nil
}

// expandHistoryIDs resolves the short ids shown by `history list`.
func expandHistoryIDs(cmd *cobra.Command, store *history.Store, args []string) ([]string, error) {
	entries, err := store.List(cmd.Context(), history.MaxEntries)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(args))
	for _, arg := range args {
		match, err := matchHistoryID(entries, arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, match)
	}
	return ids, nil
}

func matchHistoryID(entries []history.Entry, prefix string) (string, error) {
	var found []string
	for _, e := range entries {
		if e.ID == prefix {
			return e.ID, nil
		}
		if len(prefix) >= 4 && len(e.ID) >= len(prefix) && e.ID[:len(prefix)] == prefix {
			found = append(found, e.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: %s", history.ErrNotFound, prefix)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("ambiguous id %s, use more characters", prefix)
	}
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStrict()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("History cleared.")
	return nil
}

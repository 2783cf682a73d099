package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/enterprise-data-agent/server/internal/agent/model"
)

var (
	askThread string
	askUser   string
	askTitle  string
	askStream bool
	askJSON   bool
)

// askCmd runs one question through the workflow
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about your data",
	Long: `Runs the question through the query agent and the render agent.

Pass --thread to continue an existing conversation; without it a new
thread is created and its id is printed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askThread, "thread", "", "Existing thread id")
	askCmd.Flags().StringVar(&askUser, "user", "cli", "User id owning new threads")
	askCmd.Flags().StringVar(&askTitle, "title", "", "Title for a new thread")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "Print the answer in chunks as it is produced")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the full response as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	runner, err := rt.workflow(ctx)
	if err != nil {
		return fmt.Errorf("agent not ready: %w", err)
	}

	in := model.ChatInput{
		Message:  strings.Join(args, " "),
		ThreadID: askThread,
		UserID:   askUser,
		Title:    askTitle,
	}
	out := cmd.OutOrStdout()

	if askStream {
		var threadID string
		for ev := range runner.Stream(ctx, in) {
			if ev.Error != "" {
				return fmt.Errorf("%s", ev.Error)
			}
			if ev.Done {
				threadID = ev.ThreadID
				continue
			}
			fmt.Fprint(out, ev.Content)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(cmd.ErrOrStderr(), "thread: %s\n", threadID)
		return nil
	}

	resp, err := runner.Invoke(ctx, in)
	if err != nil {
		return err
	}
	if askJSON {
		return printJSON(cmd, resp)
	}
	fmt.Fprintln(out, resp.Text)
	fmt.Fprintf(cmd.ErrOrStderr(), "thread: %s\n", resp.ThreadID)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

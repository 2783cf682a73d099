package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/enterprise-data-agent/server/internal/agent/model"
	"github.com/enterprise-data-agent/server/internal/agent/threads"
)

var threadsUser string

// threadsCmd manages conversation threads
var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Manage conversation threads",
	Long: `List and manage the threads of a user.

Subcommands:
  list      - List threads, newest first
  show      - Show one thread
  rename    - Change a thread title
  archive   - Mark a thread archived
  restore   - Mark a thread regular again
  delete    - Delete a thread
  messages  - Print the messages of a thread`,
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads, newest first",
	Args:  cobra.NoArgs,
	RunE: withThreads(func(cmd *cobra.Command, svc *threads.Service, args []string) error {
		list, err := svc.List(cmd.Context(), threadsUser)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No threads found.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "THREAD\tSTATUS\tCREATED\tTITLE")
		for _, t := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ThreadID, t.Status, t.CreatedAt.Format(time.RFC3339), t.Title)
		}
		return w.Flush()
	}),
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Show one thread",
	Args:  cobra.ExactArgs(1),
	RunE: withThreads(func(cmd *cobra.Command, svc *threads.Service, args []string) error {
		t, err := svc.Get(cmd.Context(), threadsUser, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, t)
	}),
}

var threadsRenameCmd = &cobra.Command{
	Use:   "rename <thread-id> <title>",
	Short: "Change a thread title",
	Args:  cobra.MinimumNArgs(2),
	RunE: withThreads(func(cmd *cobra.Command, svc *threads.Service, args []string) error {
		title := strings.Join(args[1:], " ")
		if err := svc.Update(cmd.Context(), threadsUser, args[0], threads.Update{Title: &title}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s\n", args[0])
		return nil
	}),
}

var threadsArchiveCmd = &cobra.Command{
	Use:   "archive <thread-id>",
	Short: "Mark a thread archived",
	Args:  cobra.ExactArgs(1),
	RunE:  setThreadStatus(model.ThreadStatusArchived),
}

var threadsRestoreCmd = &cobra.Command{
	Use:   "restore <thread-id>",
	Short: "Mark a thread regular again",
	Args:  cobra.ExactArgs(1),
	RunE:  setThreadStatus(model.ThreadStatusRegular),
}

var threadsDeleteCmd = &cobra.Command{
	Use:   "delete <thread-id>",
	Short: "Delete a thread",
	Args:  cobra.ExactArgs(1),
	RunE: withThreads(func(cmd *cobra.Command, svc *threads.Service, args []string) error {
		if err := svc.Delete(cmd.Context(), threadsUser, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	}),
}

var threadsMessagesCmd = &cobra.Command{
	Use:   "messages <thread-id>",
	Short: "Print the messages of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: withThreads(func(cmd *cobra.Command, svc *threads.Service, args []string) error {
		msgs, err := svc.Messages(cmd.Context(), threadsUser, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, msgs)
	}),
}

func init() {
	threadsCmd.PersistentFlags().StringVar(&threadsUser, "user", "cli", "User id owning the threads")

	threadsCmd.AddCommand(threadsListCmd)
	threadsCmd.AddCommand(threadsShowCmd)
	threadsCmd.AddCommand(threadsRenameCmd)
	threadsCmd.AddCommand(threadsArchiveCmd)
	threadsCmd.AddCommand(threadsRestoreCmd)
	threadsCmd.AddCommand(threadsDeleteCmd)
	threadsCmd.AddCommand(threadsMessagesCmd)
}

func withThreads(fn func(cmd *cobra.Command, svc *threads.Service, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		cmd.SetContext(ctx)

		svc, err := rt.threadService(ctx)
		if err != nil {
			return err
		}
		return fn(cmd, svc, args)
	}
}

func setThreadStatus(status string) func(*cobra.Command, []string) error {
	return withThreads(func(cmd *cobra.Command, svc *threads.Service, args []string) error {
		if err := svc.Update(cmd.Context(), threadsUser, args[0], threads.Update{Status: &status}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], status)
		return nil
	})
}

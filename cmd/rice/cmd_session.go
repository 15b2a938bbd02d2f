package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rice/internal/digest"
	"rice/internal/eventbus"
	"rice/internal/session"
	"rice/internal/sessionstore"
)

var (
	sessionProject string
	sessionMaxMsgs int
	sessionRole    string
	gcRetention    int
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Administer encrypted conversation sessions",
}

func openSessionStore() (*sessionstore.Store, error) {
	codec, err := loadCodec()
	if err != nil {
		return nil, err
	}
	store, err := sessionstore.New(filepath.Join(cfg.Home, "sessions"), codec, bus)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// loadSession fetches one session, mapping decrypt failures to the auth
// exit code. The undecryptable file is left on disk.
func loadSession(store *sessionstore.Store, id string) (*session.Session, error) {
	sess, err := store.Load(id)
	if err != nil {
		if errors.Is(err, digest.ErrAuthFailure) {
			return nil, exitf(exitAuthFailure, "session %s: %v", id, err)
		}
		return nil, err
	}
	if sess == nil {
		return nil, exitf(exitInvalidInput, "session %s not found", id)
	}
	return sess, nil
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new active session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}

		maxMsgs := sessionMaxMsgs
		if maxMsgs <= 0 {
			maxMsgs = cfg.CoreLimits.MaxMessagesPerTurn
		}
		sess, events := session.New(sessionProject, maxMsgs)
		if err := store.Save(sess); err != nil {
			return err
		}
		for _, e := range events {
			bus.Publish(e)
		}

		logger.Info("session created", zap.String("id", sess.ID()), zap.String("project", sessionProject))
		fmt.Fprintln(cmd.OutOrStdout(), sess.ID())
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted session ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		ids, err := store.List()
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session's state and messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		sess, err := loadSession(store, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "id:       %s\n", sess.ID())
		fmt.Fprintf(out, "project:  %s\n", sess.ProjectID())
		fmt.Fprintf(out, "state:    %s\n", sess.State())
		fmt.Fprintf(out, "version:  %d\n", sess.Version())
		fmt.Fprintf(out, "messages: %d/%d\n", sess.MessageCount(), sess.MaxMessages())
		fmt.Fprintf(out, "updated:  %s\n", sess.UpdatedAt().Format("2006-01-02 15:04:05"))
		for _, msg := range sess.Messages() {
			fmt.Fprintf(out, "  [%s] %s\n", msg.Role, msg.Content)
		}
		return nil
	},
}

var sessionAddMessageCmd = &cobra.Command{
	Use:   "add-message <id> <content>",
	Short: "Append a message to an active session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch session.Role(sessionRole) {
		case session.RoleUser, session.RoleAssistant, session.RoleSystem:
		default:
			return exitf(exitInvalidInput, "unknown role %q", sessionRole)
		}
		return runSessionCommand(args[0], func(sess *session.Session) ([]eventbus.Event, error) {
			return sess.AddMessage(args[1], session.Role(sessionRole))
		})
	},
}

var sessionPauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause an active session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionCommand(args[0], (*session.Session).Pause)
	},
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume a paused session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionCommand(args[0], (*session.Session).Resume)
	},
}

var sessionCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Complete an active or paused session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionCommand(args[0], (*session.Session).Complete)
	},
}

var sessionArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a completed session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionCommand(args[0], (*session.Session).Archive)
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		existed, err := store.Delete(args[0])
		if err != nil {
			return err
		}
		if !existed {
			return exitf(exitInvalidInput, "session %s not found", args[0])
		}
		return nil
	},
}

var sessionGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete sessions past the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		deleted, err := store.GarbageCollect(gcRetention)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d sessions\n", len(deleted))
		for _, id := range deleted {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
		}
		return nil
	},
}

var sessionBackupCmd = &cobra.Command{
	Use:   "backup <dir>",
	Short: "Copy all session files into a backup directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		return store.BackupTo(args[0])
	},
}

var sessionRestoreCmd = &cobra.Command{
	Use:   "restore <dir>",
	Short: "Restore session files from a backup directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		return store.RestoreFrom(args[0])
	},
}

// runSessionCommand loads, applies one aggregate command, saves, and
// only then publishes the command's events: persistence precedes
// external visibility.
func runSessionCommand(id string, apply func(*session.Session) ([]eventbus.Event, error)) error {
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	sess, err := loadSession(store, id)
	if err != nil {
		return err
	}

	events, err := apply(sess)
	if err != nil {
		var rule *session.BusinessRuleViolationError
		var limit *session.MessageLimitError
		if errors.As(err, &rule) || errors.As(err, &limit) {
			return exitf(exitInvalidInput, "session %s: %v", id, err)
		}
		return err
	}
	if err := store.Save(sess); err != nil {
		return err
	}
	for _, e := range events {
		bus.Publish(e)
	}
	return nil
}

func init() {
	sessionCreateCmd.Flags().StringVar(&sessionProject, "project", "default", "parent project id")
	sessionCreateCmd.Flags().IntVar(&sessionMaxMsgs, "max-messages", 0, "message cap (default: config max_messages_per_turn)")
	sessionAddMessageCmd.Flags().StringVar(&sessionRole, "role", "user", "message role: user, assistant, or system")
	sessionGCCmd.Flags().IntVar(&gcRetention, "retention-days", 30, "delete sessions not updated in this many days")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionAddMessageCmd)
	sessionCmd.AddCommand(sessionPauseCmd)
	sessionCmd.AddCommand(sessionResumeCmd)
	sessionCmd.AddCommand(sessionCompleteCmd)
	sessionCmd.AddCommand(sessionArchiveCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	sessionCmd.AddCommand(sessionGCCmd)
	sessionCmd.AddCommand(sessionBackupCmd)
	sessionCmd.AddCommand(sessionRestoreCmd)
}

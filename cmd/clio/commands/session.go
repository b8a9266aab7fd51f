package commands

import (
	"context"
	"fmt"

	"github.com/clio-agent/clio/internal/config"
	"github.com/clio-agent/clio/internal/session"
	"github.com/clio-agent/clio/internal/storage"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and share sessions",
}

var sessionExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Print a redacted, read-only transcript of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionExport,
}

var sessionShareCmd = &cobra.Command{
	Use:   "share <session-id>",
	Short: "Generate a share URL for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShare,
}

var sessionUnshareCmd = &cobra.Command{
	Use:   "unshare <session-id>",
	Short: "Revoke a session's share URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionUnshare,
}

func init() {
	sessionCmd.AddCommand(sessionExportCmd)
	sessionCmd.AddCommand(sessionShareCmd)
	sessionCmd.AddCommand(sessionUnshareCmd)
	rootCmd.AddCommand(sessionCmd)
}

// sessionService builds a minimal session.Service backed by the on-disk
// store — enough for export/share, which never dispatch an LLM turn and so
// need neither a provider registry nor a tool registry.
func sessionService() (*session.Service, error) {
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, err
	}
	store := storage.New(paths.StoragePath())
	return session.NewServiceWithProcessor(store, nil, nil, nil, "", ""), nil
}

func runSessionExport(cmd *cobra.Command, args []string) error {
	svc, err := sessionService()
	if err != nil {
		return err
	}
	text, err := svc.Export(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("export session: %w", err)
	}
	fmt.Println(text)
	return nil
}

func runSessionShare(cmd *cobra.Command, args []string) error {
	svc, err := sessionService()
	if err != nil {
		return err
	}
	url, err := svc.Share(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("share session: %w", err)
	}
	fmt.Println(url)
	return nil
}

func runSessionUnshare(cmd *cobra.Command, args []string) error {
	svc, err := sessionService()
	if err != nil {
		return err
	}
	if err := svc.Unshare(context.Background(), args[0]); err != nil {
		return fmt.Errorf("unshare session: %w", err)
	}
	fmt.Printf("Unshared session %s\n", args[0])
	return nil
}

// Command notifyctl is an operator tool for checking and replaying gateway
// notifications.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "notifyctl",
		Short:         "Inspect and replay payment gateway notifications",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(replayCmd())

	return rootCmd
}

// readNotifications reads either a batch envelope or a single notification
// from path, or from stdin when path is "-".
func readNotifications(cmd *cobra.Command, path string) ([]notification.Notification, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var batch notification.Batch
	if err := json.Unmarshal(data, &batch); err == nil && len(batch.NotificationItems) > 0 {
		return batch.NotificationItems, nil
	}

	n, err := notification.Parse(data)
	if err != nil {
		return nil, err
	}
	if n.NotificationRequestItem.PSPReference == "" && n.NotificationRequestItem.EventCode == "" {
		return nil, fmt.Errorf("%s holds no notification", path)
	}
	return []notification.Notification{*n}, nil
}

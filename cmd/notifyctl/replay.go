package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cassiomorais/notifications/internal/application/reconcile"
	"github.com/cassiomorais/notifications/internal/bootstrap"
	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/cassiomorais/notifications/internal/domain/payment"
	"github.com/spf13/cobra"
)

func replayCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "replay <file|->",
		Short: "Run notifications through the reconciliation engine",
		Long: `Replay processes every notification in the file exactly like the worker does,
bypassing the queue. Reconciliation is idempotent, so replaying a notification the
payment already reflects changes nothing.

With --dry-run the payments are looked up and the update actions are computed and
printed, but nothing is submitted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readNotifications(cmd, args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			app, err := bootstrap.New(ctx, "notifyctl", "notifyctl", bootstrap.WithoutRedis())
			if err != nil {
				return err
			}
			defer app.Close()

			if dryRun {
				compiler, err := bootstrap.NewCompiler(app.Config)
				if err != nil {
					return err
				}
				return previewNotifications(ctx, cmd.OutOrStdout(), app.Payments, compiler, items)
			}

			processor, err := app.NewProcessor()
			if err != nil {
				return err
			}
			return replayNotifications(ctx, cmd.OutOrStdout(), processor, items)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the update actions without submitting them")

	return cmd
}

func describe(item *notification.RequestItem) string {
	return fmt.Sprintf("%s %s %s", item.PSPReference, item.EventCode, item.MerchantReference)
}

func replayNotifications(ctx context.Context, out io.Writer, processor *reconcile.ProcessNotificationUseCase, items []notification.Notification) error {
	failed := 0
	for i := range items {
		result, err := processor.Execute(ctx, &items[i])
		line := fmt.Sprintf("%s: %s", describe(&items[i].NotificationRequestItem), result.Outcome)
		if result.Reason != "" {
			line += " (" + result.Reason + ")"
		}
		if result.Retries > 0 {
			line += fmt.Sprintf(" after %d retries", result.Retries)
		}
		if err != nil {
			line += ": " + err.Error()
			failed++
		}
		fmt.Fprintln(out, line)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d notifications failed", failed, len(items))
	}
	return nil
}

// previewNotifications resolves each payment and prints the actions a replay would
// submit against its current version.
func previewNotifications(ctx context.Context, out io.Writer, repo payment.Repository, compiler *reconcile.ActionCompiler, items []notification.Notification) error {
	resolver := reconcile.NewReferenceResolver(repo)

	failed := 0
	for i := range items {
		item := &items[i].NotificationRequestItem
		prefix := describe(item) + ": "

		if item.MerchantReference == "" {
			fmt.Fprintln(out, prefix+"no merchant reference")
			continue
		}
		p, found, err := resolver.Resolve(ctx, item.MerchantReference)
		if err != nil {
			fmt.Fprintln(out, prefix+err.Error())
			failed++
			continue
		}
		if !found {
			fmt.Fprintln(out, prefix+"payment not found")
			continue
		}

		actions, err := compiler.Compile(p, &items[i])
		switch {
		case err != nil:
			fmt.Fprintf(out, "%spayment %s version %d: %v\n", prefix, p.ID, p.Version, err)
			failed++
		case len(actions) == 0:
			fmt.Fprintf(out, "%spayment %s version %d: no changes\n", prefix, p.ID, p.Version)
		default:
			fmt.Fprintf(out, "%spayment %s version %d: %s\n", prefix, p.ID, p.Version,
				strings.Join(payment.ActionNames(actions), ", "))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d notifications failed", failed, len(items))
	}
	return nil
}

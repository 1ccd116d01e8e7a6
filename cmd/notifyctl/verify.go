package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/cassiomorais/notifications/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

func verifyCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "verify <file|->",
		Short: "Check the HMAC signature of notifications",
		Long: `Verify recomputes the HMAC signature of every notification in the file and
compares it with the hmacSignature in its additional data. The key comes from
--key, or from the configured key of each notification's merchant account.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readNotifications(cmd, args[0])
			if err != nil {
				return err
			}

			keys, err := keySource(key)
			if err != nil {
				return err
			}

			failed := 0
			for i := range items {
				item := &items[i].NotificationRequestItem
				status := "OK"
				if k, ok := keys(item.MerchantAccountCode); !ok {
					status = fmt.Sprintf("NO KEY for merchant account %q", item.MerchantAccountCode)
					failed++
				} else if err := notification.VerifySignature(&items[i], k); err != nil {
					status = "INVALID: " + err.Error()
					failed++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s: %s\n", item.PSPReference, item.EventCode, item.MerchantReference, status)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d notifications failed verification", failed, len(items))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&key, "key", "k", "", "Hex encoded HMAC key (defaults to the configured keys)")

	return cmd
}

func signCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "sign <file|->",
		Short: "Sign notifications and print them as a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				return errors.New("--key is required")
			}
			items, err := readNotifications(cmd, args[0])
			if err != nil {
				return err
			}

			for i := range items {
				item := &items[i].NotificationRequestItem
				sig, err := notification.CalculateSignature(item, key)
				if err != nil {
					return err
				}
				if item.AdditionalData == nil {
					item.AdditionalData = map[string]string{}
				}
				item.AdditionalData[notification.AdditionalDataHMACSignature] = sig
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(notification.Batch{Live: "false", NotificationItems: items})
		},
	}

	cmd.Flags().StringVarP(&key, "key", "k", "", "Hex encoded HMAC key")

	return cmd
}

// keySource returns a lookup of the HMAC key per merchant account.
func keySource(key string) (func(string) (string, bool), error) {
	if key != "" {
		return func(string) (string, bool) { return key, true }, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg.Notification.HMACKey, nil
}

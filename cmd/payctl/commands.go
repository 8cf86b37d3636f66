package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/bootstrap"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/config"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/correlation"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/env"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/webhook"
)

// withContainer loads the configuration, wires the services and runs fn with
// a context that carries a fresh correlation id for the whole command.
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *bootstrap.Container) error) error {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, id := correlation.Ensure(cmd.Context())
	fmt.Fprintf(cmd.ErrOrStderr(), "correlation_id=%s\n", id)

	c, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one subscription renewal pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				report, err := c.Reconciler.RunOnce(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func subscriptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Subscription maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "make-due [id]",
		Short: "Move a subscription's next billing date into the past",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				sub, err := c.Subscriptions.MakeDue(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sub)
			})
		},
	})

	return cmd
}

func webhooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Webhook maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "retry [id]",
		Short: "Reprocess a FAILED webhook event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				event, err := c.Webhooks.Retry(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), event)
			})
		},
	})

	cmd.AddCommand(signCmd())
	return cmd
}

// signCmd prints the X-Signature header for a payload file, for replaying
// deliveries by hand.
func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign [payload-file]",
		Short: "Compute the X-Signature header for a payload (- reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, _ := cmd.Flags().GetString("algorithm")
			hexKey, _ := cmd.Flags().GetString("key")
			if hexKey == "" {
				env.SetupEnvFile()
				hexKey = env.GetEnv("WEBHOOK_SIGNATURE_KEY", "")
			}

			verifier, err := webhook.NewVerifier(hexKey)
			if err != nil {
				return err
			}
			if !verifier.Configured() {
				return fmt.Errorf("no signing key: pass --key or set WEBHOOK_SIGNATURE_KEY")
			}

			payload, err := readPayload(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			header, err := verifier.Sign(webhook.Algorithm(alg), payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), header)
			return nil
		},
	}

	cmd.Flags().StringP("algorithm", "a", string(webhook.AlgSHA512), "HMAC algorithm (SHA512, SHA256, SHA3-512)")
	cmd.Flags().StringP("key", "k", "", "Hex signing key (defaults to WEBHOOK_SIGNATURE_KEY)")
	return cmd
}

func readPayload(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}

func idempotencyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "idempotency",
		Short: "Idempotency key maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired idempotency records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				n, err := c.Idempotency.PurgeExpired(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int64{"purged": n})
			})
		},
	})

	return cmd
}

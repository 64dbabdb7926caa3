package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/identity"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/security"
)

func deriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "derive [serial]",
		Short: "Print the NFC uid and token derived from a tag serial",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !identity.Valid(args[0]) {
				return errors.New("serial has no hex digits")
			}
			return writeJSON(cmd.OutOrStdout(), identity.DeriveIdentity(args[0]))
		},
	}
}

func signCmd() *cobra.Command {
	var secret string
	var shopify bool

	cmd := &cobra.Command{
		Use:   "sign [file|-]",
		Short: "Compute the webhook signature header for a body",
		Long: `Signs the exact bytes of a file (or stdin with "-") with HMAC-SHA256.
The ink header is hex; --shopify prints the base64 Shopify form.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret is required")
			}
			body, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			header, enc := security.InkSignatureHeader, security.Hex
			if shopify {
				header, enc = security.ShopifySignatureHeader, security.Base64
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", header, security.Sign(body, secret, enc))
			return nil
		},
	}

	cmd.Flags().StringVarP(&secret, "secret", "s", os.Getenv("INK_WEBHOOK_SECRET"), "Webhook secret")
	cmd.Flags().BoolVar(&shopify, "shopify", false, "Sign as a Shopify webhook (base64)")
	return cmd
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/app"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/notify"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/shopify"
)

func bootstrap(cmd *cobra.Command) (*app.App, error) {
	return app.Bootstrap(cmd.Context(), "inkctl")
}

func shopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shop",
		Short: "Manage the connected Shopify store",
	}
	cmd.AddCommand(shopConnectCmd())
	cmd.AddCommand(shopAlertsCmd())
	return cmd
}

func shopAlertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alerts [email]",
		Short: "Create the merchant alerts topic and subscribe an e-mail",
		Long: `Prints the topic ARN to set as MERCHANT_ALERTS_TOPIC_ARN. The subscriber
must confirm the e-mail SNS sends before flagged alerts arrive.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			arn, err := notify.EnsureMerchantAlerts(cmd.Context(), a.SNS(), a.Cfg.Stage, a.Cfg.ShopDomain, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), arn)
			return nil
		},
	}
}

func shopConnectCmd() *cobra.Command {
	var token, scope, address string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Store the shop's Admin API token and subscribe webhooks",
		Long: `Encrypts the access token into INTEGRATIONS_TABLE for SHOPIFY_SHOP_DOMAIN
and, when --webhook-address is given, subscribes the orders/create topic.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			if a.Cfg.ShopDomain == "" {
				return errors.New("missing env SHOPIFY_SHOP_DOMAIN")
			}
			if token == "" {
				token = a.Cfg.ShopifyAccessToken
			}
			if scope == "" {
				scope = a.Cfg.ShopifyScopes
			}
			store, err := a.TokenStore()
			if err != nil {
				return err
			}
			if err := store.Save(cmd.Context(), a.Cfg.ShopDomain, token, scope); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "saved token for %s\n", a.Cfg.ShopDomain)

			if address == "" {
				return nil
			}
			c := shopify.NewClient(a.Cfg.ShopDomain, a.Cfg.ShopifyAPIVersion, token, 0)
			created, failed := c.SubscribeTopics(cmd.Context(), address)
			for _, t := range created {
				fmt.Fprintf(out, "subscribed %s\n", t)
			}
			for _, f := range failed {
				fmt.Fprintf(out, "failed %s: %s\n", f["topic"], f["error"])
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d webhook subscriptions failed", len(failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Admin API access token (default $SHOPIFY_ACCESS_TOKEN)")
	cmd.Flags().StringVar(&scope, "scope", "", "Granted scopes (default $SHOPIFY_SCOPES)")
	cmd.Flags().StringVar(&address, "webhook-address", "", "Public URL of /webhooks/shopify/orders-create")
	return cmd
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [order-ref]",
		Short: "Resolve an order name, number or GID to its Shopify GID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			c, err := a.ShopifyClient(cmd.Context())
			if err != nil {
				return err
			}
			gid, err := shopify.NewResolver(c).Resolve(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			st, err := shopify.NewSynchronizer(c).ReadOrder(cmd.Context(), gid)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), st)
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the follow-up reminder sweep once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			o, err := a.Orchestrator(cmd.Context(), a.Queue())
			if err != nil {
				return err
			}
			rep, err := o.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rep)
		},
	}
}

func etlCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "etl",
		Short: "Write verification metrics for the configured window",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			h, err := a.MetricsETL()
			if err != nil {
				return err
			}
			rep, err := h.Run(ctx)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if !repair {
				return nil
			}
			res, err := a.RepairPartitions(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Run MSCK REPAIR TABLE afterwards")
	return cmd
}

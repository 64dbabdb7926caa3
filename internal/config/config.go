package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/caarlos0/env/v9"
)

type Config struct {
	Stage    string `env:"INK_STAGE" envDefault:"dev"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	ShopDomain                string `env:"SHOPIFY_SHOP_DOMAIN"`
	ShopifyAPIVersion         string `env:"SHOPIFY_API_VERSION" envDefault:"2026-01"`
	ShopifyAccessToken        string `env:"SHOPIFY_ACCESS_TOKEN"`
	ShopifyAccessTokenParam   string `env:"SHOPIFY_ACCESS_TOKEN_PARAM"`
	ShopifyWebhookSecret      string `env:"SHOPIFY_WEBHOOK_SECRET"`
	ShopifyWebhookSecretParam string `env:"SHOPIFY_WEBHOOK_SECRET_PARAM"`
	ShopifyScopes             string `env:"SHOPIFY_SCOPES" envDefault:"read_orders,write_orders"`

	InkAPIBaseURL         string        `env:"INK_API_BASE_URL"`
	InkAPIKey             string        `env:"INK_API_KEY"`
	InkAPIKeyParam        string        `env:"INK_API_KEY_PARAM"`
	InkWebhookSecret      string        `env:"INK_WEBHOOK_SECRET"`
	InkWebhookSecretParam string        `env:"INK_WEBHOOK_SECRET_PARAM"`
	InkHTTPTimeout        time.Duration `env:"INK_HTTP_TIMEOUT" envDefault:"10s"`
	WarehouseAPIKey       string        `env:"WAREHOUSE_API_KEY"`
	WarehouseAPIKeyParam  string        `env:"WAREHOUSE_API_KEY_PARAM"`
	AddonSKU              string        `env:"INK_ADDON_SKU" envDefault:"INK-VERIFIED-DELIVERY"`

	LedgerTable       string `env:"LEDGER_TABLE"`
	LedgerIndex       string `env:"LEDGER_GSI" envDefault:"GSI1"`
	IntegrationsTable string `env:"INTEGRATIONS_TABLE"`
	TokenEncKeyB64    string `env:"TOKEN_ENC_KEY_B64"`

	JobsTopicARN           string `env:"JOBS_TOPIC_ARN"`
	MerchantAlertsTopicARN string `env:"MERCHANT_ALERTS_TOPIC_ARN"`
	NotifyEmailFrom        string `env:"NOTIFY_EMAIL_FROM"`

	FollowupMinAge time.Duration `env:"FOLLOWUP_MIN_AGE" envDefault:"24h"`
	FollowupMaxAge time.Duration `env:"FOLLOWUP_MAX_AGE" envDefault:"72h"`

	AnalyticsBucket string `env:"ANALYTICS_BUCKET"`
	MetricsPrefix   string `env:"VERIFICATION_METRICS_PREFIX" envDefault:"verification_metrics/"`
	GlueDatabase    string `env:"GLUE_DATABASE"`
	GlueTable       string `env:"GLUE_TABLE" envDefault:"verification_metrics"`
	AthenaWorkgroup string `env:"ATHENA_WORKGROUP" envDefault:"primary"`
	AthenaOutput    string `env:"ATHENA_OUTPUT"`
	ETLTimezone     string `env:"ETL_TIMEZONE" envDefault:"UTC"`
	ETLDaysBack     int    `env:"ETL_DAYS_BACK" envDefault:"1"`

	DevListenAddr string `env:"DEV_LISTEN_ADDR" envDefault:":8080"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.ShopDomain = strings.ToLower(strings.TrimSpace(cfg.ShopDomain))
	cfg.MetricsPrefix = ensureTrailingSlash(cfg.MetricsPrefix)
	if cfg.ETLDaysBack <= 0 || cfg.ETLDaysBack > 90 {
		cfg.ETLDaysBack = 1
	}
	if cfg.FollowupMaxAge <= cfg.FollowupMinAge {
		return nil, fmt.Errorf("FOLLOWUP_MAX_AGE (%s) must exceed FOLLOWUP_MIN_AGE (%s)", cfg.FollowupMaxAge, cfg.FollowupMinAge)
	}
	return &cfg, nil
}

type ParameterStore interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// secretRef pairs a value with the SSM parameter name that may supply it.
type secretRef struct {
	value *string
	param string
}

func (c *Config) secretRefs() []secretRef {
	return []secretRef{
		{&c.ShopifyAccessToken, c.ShopifyAccessTokenParam},
		{&c.ShopifyWebhookSecret, c.ShopifyWebhookSecretParam},
		{&c.InkAPIKey, c.InkAPIKeyParam},
		{&c.InkWebhookSecret, c.InkWebhookSecretParam},
		{&c.WarehouseAPIKey, c.WarehouseAPIKeyParam},
	}
}

// ResolveSecrets fills every secret that is empty but has a *_PARAM name
// from SSM Parameter Store in one decrypted GetParameters call.
func (c *Config) ResolveSecrets(ctx context.Context, store ParameterStore) error {
	want := map[string][]*string{}
	var names []string
	for _, r := range c.secretRefs() {
		if *r.value != "" || r.param == "" {
			continue
		}
		if _, ok := want[r.param]; !ok {
			names = append(names, r.param)
		}
		want[r.param] = append(want[r.param], r.value)
	}
	if len(names) == 0 {
		return nil
	}

	for start := 0; start < len(names); start += 10 {
		end := min(start+10, len(names))
		out, err := store.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          names[start:end],
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("ssm get parameters: %w", err)
		}
		if len(out.InvalidParameters) > 0 {
			return fmt.Errorf("ssm parameters not found: %s", strings.Join(out.InvalidParameters, ", "))
		}
		for _, p := range out.Parameters {
			for _, dst := range want[aws.ToString(p.Name)] {
				*dst = aws.ToString(p.Value)
			}
		}
	}
	return nil
}

// RequireAPI checks what the HTTP entry point and worker cannot run without.
func (c *Config) RequireAPI() error {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("SHOPIFY_SHOP_DOMAIN", c.ShopDomain)
	check("INK_API_BASE_URL", c.InkAPIBaseURL)
	check("INK_WEBHOOK_SECRET", c.InkWebhookSecret)
	check("LEDGER_TABLE", c.LedgerTable)
	if c.ShopifyAccessToken == "" && (c.IntegrationsTable == "" || c.TokenEncKeyB64 == "") {
		missing = append(missing, "SHOPIFY_ACCESS_TOKEN or INTEGRATIONS_TABLE+TOKEN_ENC_KEY_B64")
	}
	if len(missing) > 0 {
		return errors.New("missing env: " + strings.Join(missing, ", "))
	}
	return nil
}

func ensureTrailingSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

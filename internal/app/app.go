// Package app builds the shared runtime (config, AWS clients, orchestrator)
// for every entry point so each cmd/ main stays a few lines long.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/config"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/db"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/etl"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/handlers"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/jobs"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/ledger"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/logger"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/metrics"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/notify"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/proof"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/reconcile"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/security"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/shopify"
)

type App struct {
	Cfg      *config.Config
	AWS      aws.Config
	Log      *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	ddb *dynamodb.Client
	sns *sns.Client
}

// Bootstrap loads env config, the default AWS config and any SSM-backed
// secrets. service tags every log line.
func Bootstrap(ctx context.Context, service string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if err := cfg.ResolveSecrets(ctx, ssm.NewFromConfig(awsCfg)); err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	return &App{
		Cfg:      cfg,
		AWS:      awsCfg,
		Log:      logger.New(service, cfg.LogLevel),
		Registry: reg,
		Metrics:  metrics.New(reg),
	}, nil
}

func (a *App) DynamoDB() *dynamodb.Client {
	if a.ddb == nil {
		a.ddb = db.NewDynamoClient(a.AWS)
	}
	return a.ddb
}

func (a *App) SNS() *sns.Client {
	if a.sns == nil {
		a.sns = sns.NewFromConfig(a.AWS)
	}
	return a.sns
}

func (a *App) Ledger() *ledger.Store {
	s := ledger.New(a.DynamoDB(), a.Cfg.LedgerTable, a.Cfg.ShopDomain)
	if a.Cfg.LedgerIndex != "" {
		s.Index = a.Cfg.LedgerIndex
	}
	return s
}

func (a *App) TokenStore() (*shopify.TokenStore, error) {
	if a.Cfg.IntegrationsTable == "" {
		return nil, errors.New("missing env INTEGRATIONS_TABLE")
	}
	cipher, err := security.NewTokenCipher(a.Cfg.TokenEncKeyB64)
	if err != nil {
		return nil, err
	}
	return &shopify.TokenStore{DB: a.DynamoDB(), Table: a.Cfg.IntegrationsTable, Cipher: cipher}, nil
}

// TokenLoader is the part of TokenStore the client builder needs.
type TokenLoader interface {
	Load(ctx context.Context, shopDomain string) (string, *shopify.IntegrationItem, error)
}

// AccessToken prefers a configured token and falls back to the encrypted
// one saved by `inkctl shop connect`.
func AccessToken(ctx context.Context, cfg *config.Config, store TokenLoader) (string, error) {
	if cfg.ShopifyAccessToken != "" {
		return cfg.ShopifyAccessToken, nil
	}
	if store == nil {
		return "", errors.New("no shopify access token configured")
	}
	tok, _, err := store.Load(ctx, cfg.ShopDomain)
	if err != nil {
		return "", fmt.Errorf("load shopify token for %s: %w", cfg.ShopDomain, err)
	}
	return tok, nil
}

func (a *App) ShopifyClient(ctx context.Context) (*shopify.Client, error) {
	var store TokenLoader
	if a.Cfg.ShopifyAccessToken == "" {
		ts, err := a.TokenStore()
		if err != nil {
			return nil, err
		}
		store = ts
	}
	tok, err := AccessToken(ctx, a.Cfg, store)
	if err != nil {
		return nil, err
	}
	return shopify.NewClient(a.Cfg.ShopDomain, a.Cfg.ShopifyAPIVersion, tok, 10*time.Second), nil
}

// Queue publishes to the jobs topic when one is configured.
func (a *App) Queue() jobs.Queue {
	if a.Cfg.JobsTopicARN == "" {
		a.Log.Warn("JOBS_TOPIC_ARN not set; notices are sent inline and sync retries are dropped")
		return nil
	}
	return &jobs.SNSQueue{SNS: a.SNS(), TopicARN: a.Cfg.JobsTopicARN}
}

func (a *App) Notifier() *notify.Dispatcher {
	return &notify.Dispatcher{
		Email:          sesv2.NewFromConfig(a.AWS),
		SNS:            a.SNS(),
		From:           a.Cfg.NotifyEmailFrom,
		AlertsTopicARN: a.Cfg.MerchantAlertsTopicARN,
		Shop:           a.Cfg.ShopDomain,
	}
}

// Orchestrator wires the authority client, Shopify, the ledger and q.
// With a nil q notices are sent inline and failed writes are not retried.
func (a *App) Orchestrator(ctx context.Context, q jobs.Queue) (*reconcile.Orchestrator, error) {
	if err := a.Cfg.RequireAPI(); err != nil {
		return nil, err
	}
	sc, err := a.ShopifyClient(ctx)
	if err != nil {
		return nil, err
	}
	o := &reconcile.Orchestrator{
		Authority: proof.New(a.Cfg.InkAPIBaseURL, a.Cfg.InkAPIKey, a.Cfg.InkHTTPTimeout),
		Resolver:  shopify.NewResolver(sc),
		Orders:    shopify.NewSynchronizer(sc),
		Ledger:    a.Ledger(),
		Notifier:  a.Notifier(),
		Metrics:   a.Metrics,
		Log:       logger.Component(a.Log, "reconcile"),
		Cfg: reconcile.Config{
			InkWebhookSecret:     a.Cfg.InkWebhookSecret,
			ShopifyWebhookSecret: a.Cfg.ShopifyWebhookSecret,
			AddonSKU:             a.Cfg.AddonSKU,
			FollowupMinAge:       a.Cfg.FollowupMinAge,
			FollowupMaxAge:       a.Cfg.FollowupMaxAge,
		},
	}
	if q != nil {
		o.Queue = q
	}
	return o, nil
}

func (a *App) API(o *reconcile.Orchestrator) *handlers.API {
	return &handlers.API{
		Svc:          o,
		WarehouseKey: a.Cfg.WarehouseAPIKey,
		Log:          logger.Component(a.Log, "api"),
	}
}

func (a *App) MetricsETL() (*etl.VerificationMetricsETL, error) {
	loc, err := time.LoadLocation(a.Cfg.ETLTimezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", a.Cfg.ETLTimezone, err)
	}
	e := &etl.VerificationMetricsETL{
		Ledger: a.Ledger(),
		S3:     s3.NewFromConfig(a.AWS),
		Cfg: etl.MetricsConfig{
			Bucket:       a.Cfg.AnalyticsBucket,
			Prefix:       a.Cfg.MetricsPrefix,
			GlueDatabase: a.Cfg.GlueDatabase,
			GlueTable:    a.Cfg.GlueTable,
			Location:     loc,
			DaysBack:     a.Cfg.ETLDaysBack,
		},
		Log: logger.Component(a.Log, "etl"),
	}
	if a.Cfg.GlueDatabase != "" {
		e.Catalog = glue.NewFromConfig(a.AWS)
	}
	return e, nil
}

func (a *App) RepairPartitions(ctx context.Context) (etl.RepairResult, error) {
	return etl.RepairPartitions(ctx, athena.NewFromConfig(a.AWS), etl.RepairConfig{
		Database:  a.Cfg.GlueDatabase,
		Table:     a.Cfg.GlueTable,
		Workgroup: a.Cfg.AthenaWorkgroup,
		Output:    a.Cfg.AthenaOutput,
	})
}

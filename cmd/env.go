package main

import (
	"context"
	"os"
	"strings"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-report/internal/enrich"
	"github.com/sells-group/crm-report/internal/store"
	"github.com/sells-group/crm-report/pkg/anthropic"
	sfpkg "github.com/sells-group/crm-report/pkg/salesforce"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "crm-report.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSalesforce() (*sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (CRMREPORT_SALESFORCE_CLIENT_ID)")
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := gosf.Init(gosf.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sfpkg.NewSDKTokenProvider(sf),
		sfpkg.WithAPIVersion(cfg.Salesforce.APIVersion),
		sfpkg.WithRateLimit(cfg.Salesforce.RateLimit),
	), nil
}

func newEnricher(sf *sfpkg.Client) (*enrich.Enricher, error) {
	opts := []enrich.Option{
		enrich.WithBasePrice(cfg.Enrich.BasePrice),
		enrich.WithChunkSize(cfg.Enrich.ChunkSize),
	}
	if cfg.Enrich.StageTablePath != "" {
		stages, err := enrich.LoadStageTable(cfg.Enrich.StageTablePath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, enrich.WithStageTable(stages))
	}

	return enrich.New(sf, opts...), nil
}

func createFile(path string) (*os.File, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		path += ".xlsx"
	}
	f, err := os.Create(path)
	return f, eris.Wrap(err, "create workbook")
}

func initAnthropic() (anthropic.Client, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (CRMREPORT_ANTHROPIC_KEY)")
	}
	return anthropic.NewClient(cfg.Anthropic.Key), nil
}

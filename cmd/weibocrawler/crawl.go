package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"weibocrawler/internal/downloader"
	"weibocrawler/internal/migrations"
	"weibocrawler/pkg/config"
	"weibocrawler/pkg/crawler"
	"weibocrawler/pkg/credentials"
	"weibocrawler/pkg/extract"
	"weibocrawler/pkg/logger"
	"weibocrawler/pkg/metrics"
	"weibocrawler/pkg/mirror"
	"weibocrawler/pkg/normalize"
	"weibocrawler/pkg/ratelimit"
	"weibocrawler/pkg/remote"
	"weibocrawler/pkg/sink"
	"weibocrawler/pkg/sink/csvfile"
	"weibocrawler/pkg/sink/jsonfile"
	"weibocrawler/pkg/sink/kvstore"
	"weibocrawler/pkg/sink/mongo"
	"weibocrawler/pkg/sink/natsbus"
	"weibocrawler/pkg/sink/neo4j"
	"weibocrawler/pkg/sink/postgres"
	"weibocrawler/pkg/ui"
	"weibocrawler/pkg/weibo"
)

var (
	// Crawl command flags
	filterOriginal bool
	sinkNames      []string
	outputDir      string
	metricsAddr    string
	accountName    string
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl [user_id...]",
	Short: "Crawl the timelines of one or more accounts",
	Long: `Crawl every timeline page of the given accounts, in order, and persist the
posts to the enabled sinks after each page.

User ids come from the arguments, crawl.user_ids in the config file and the
file named by crawl.user_id_list (one id per line, # starts a comment).

A page that fails to fetch or parse is logged and skipped. A sink that fails
to write aborts the current account and the run.`,
	Example: `  # Crawl one account into CSV files under ./weibo
  weibocrawler crawl 1669879400

  # Skip reposts and write to CSV and PostgreSQL
  weibocrawler crawl 1669879400 --filter --sink csv --sink postgres

  # Crawl the accounts listed in the config file and expose metrics
  weibocrawler crawl --config weibocrawler.yaml --metrics-addr :9090`,
	Run: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().BoolVar(&filterOriginal, "filter", false, "keep only original posts, dropping reposts")
	crawlCmd.Flags().StringSliceVar(&sinkNames, "sink", nil, "enabled sink, repeatable (csv, json, postgres, mongo, neo4j, nats, kv)")
	crawlCmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory for file sinks and media failure logs")
	crawlCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	crawlCmd.Flags().StringVarP(&accountName, "account", "a", "", "use a specific stored cookie")
}

func runCrawl(cmd *cobra.Command, args []string) {
	flags := make(map[string]interface{})
	if len(args) > 0 {
		flags["user-ids"] = args
	}
	if filterOriginal {
		flags["filter"] = true
	}
	if len(sinkNames) > 0 {
		flags["sinks"] = sinkNames
	}
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if metricsAddr != "" {
		flags["metrics-addr"] = metricsAddr
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		fail("Failed to load configuration", err)
	}

	if noColor {
		cfg.Logging.NoColor = true
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		fail("Failed to initialize logger", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("weibocrawler starting")

	userIDs, err := cfg.ResolveUserIDs()
	if err != nil {
		fail("Failed to read user ids", err)
	}

	cookie, userAgent := resolveCookie(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg, log); err != nil {
				log.WithError(err).Error("Metrics server stopped")
			}
		}()
		ui.PrintInfo("Metrics", "http://"+cfg.Metrics.Addr+"/metrics")
	}

	sinks, err := buildSinks(ctx, cfg)
	if err != nil {
		fail("Failed to open sinks", err)
	}
	fanout := sink.NewFanOut(sinks, m, log)

	mir, closeStore, err := buildMirror(ctx, cfg, cookie, userAgent, m, log)
	if err != nil {
		_ = fanout.Close()
		fail("Failed to open remote store", err)
	}
	// os.Exit skips deferred calls
	shutdown := func() {
		if err := fanout.Close(); err != nil {
			log.WithError(err).Warn("Failed to close sinks")
		}
		closeStore()
	}

	sanitizer, err := normalize.NewSanitizer(cfg.Crawl.Encoding)
	if err != nil {
		shutdown()
		fail("Invalid encoding", err)
	}

	client := weibo.NewClient(cfg.Weibo.RequestTimeout, log,
		weibo.WithBaseURL(cfg.Weibo.BaseURL),
		weibo.WithCookie(cookie),
		weibo.WithUserAgent(userAgent),
		weibo.WithLimiter(ratelimit.PerMinute(cfg.Weibo.RequestsPerMinute, cfg.Weibo.BurstSize)),
	)
	normalizer := normalize.New(client, extract.New(), sanitizer, log)

	var notifier *ui.Notifier
	if notifications {
		notifier = ui.NewNotifier()
	}

	c := crawler.New(client, normalizer, fanout, mir, crawler.Options{
		PageSize: cfg.Crawl.PageSize,
		Pacing: ratelimit.PacerConfig{
			EveryMin: cfg.Crawl.PauseEveryMin,
			EveryMax: cfg.Crawl.PauseEveryMax,
			PauseMin: cfg.Crawl.PauseMin,
			PauseMax: cfg.Crawl.PauseMax,
		},
		Categories: mirror.Categories(cfg.Media, cfg.Crawl.FilterOriginalOnly),
		Metrics:    m,
		Progress:   ui.NewCrawlProgress(verbose, notifier),
	}, log)

	ui.PrintInfo("Accounts", fmt.Sprintf("%d", len(userIDs)))
	ui.PrintInfo("Sinks", fmt.Sprintf("%v", cfg.Sinks.Enabled))

	results, err := c.RunAll(ctx, userIDs, cfg.Crawl.FilterOriginalOnly)
	completed := 0
	for _, r := range results {
		if r != nil && r.Status == crawler.StatusCompleted {
			completed++
		}
	}
	log.WithFields(map[string]interface{}{
		"accounts":  len(userIDs),
		"completed": completed,
	}).Info("Crawl finished")
	shutdown()

	if err != nil {
		log.WithError(err).Error("Crawl stopped")
		ui.PrintError("CRAWL STOPPED", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess(fmt.Sprintf("Crawled %d of %d accounts", completed, len(userIDs)))
}

// resolveCookie picks the session cookie. A cookie set in the config or the
// environment wins over stored accounts. Crawling without one is allowed;
// the public timeline API answers anonymous requests.
func resolveCookie(cfg *config.Config, log logger.Logger) (string, string) {
	if cfg.Weibo.Cookie != "" {
		log.Debug("Using cookie from configuration")
		return cfg.Weibo.Cookie, cfg.Weibo.UserAgent
	}

	manager, err := credentials.NewManager("")
	if err != nil {
		fail("Failed to initialize credential manager", err)
	}

	var account *credentials.Account
	if accountName != "" {
		account, err = manager.Retrieve(accountName)
		if err != nil {
			ui.PrintError("Account not found", accountName)
			ui.PrintInfo("Available accounts", "Use 'weibocrawler auth list' to see stored cookies")
			os.Exit(1)
		}
	} else {
		account, err = manager.RetrieveDefault()
		if err != nil {
			log.Warn("No stored cookie, crawling anonymously")
			ui.PrintWarning("No cookie configured, crawling anonymously")
			return "", cfg.Weibo.UserAgent
		}
	}

	log.WithField("account", account.Name).Info("Using stored cookie")
	ui.PrintInfo("Using account", account.Name)
	userAgent := cfg.Weibo.UserAgent
	if account.UserAgent != "" {
		userAgent = account.UserAgent
	}
	return account.Cookie, userAgent
}

// buildSinks opens the enabled sinks in configured order
func buildSinks(ctx context.Context, cfg *config.Config) ([]sink.RecordSink, error) {
	var sinks []sink.RecordSink
	closeAll := func() {
		_ = sink.NewFanOut(sinks, nil, nil).Close()
	}

	for _, name := range cfg.Sinks.Enabled {
		var (
			s   sink.RecordSink
			err error
		)
		switch name {
		case config.SinkCSV:
			s, err = csvfile.New(cfg.Sinks.CSV.Dir, !cfg.Crawl.FilterOriginalOnly, cfg.Crawl.Encoding)
		case config.SinkJSON:
			s = jsonfile.New(cfg.Sinks.JSON.Dir)
		case config.SinkPostgres:
			pg := cfg.Sinks.Postgres
			if pg.AutoMigrate {
				if err = migrations.Up(ctx, pg.DSN); err != nil {
					err = fmt.Errorf("migrate postgres: %w", err)
					break
				}
			}
			s, err = postgres.New(ctx, postgres.Config{DSN: pg.DSN, MaxConns: pg.MaxConns})
		case config.SinkMongo:
			s, err = mongo.New(ctx, cfg.Sinks.Mongo.URI, cfg.Sinks.Mongo.Database)
		case config.SinkNeo4j:
			s, err = neo4j.New(ctx, cfg.Sinks.Neo4j)
		case config.SinkNATS:
			s, err = natsbus.New(cfg.Sinks.NATS.URL, cfg.Sinks.NATS.SubjectPrefix)
		case config.SinkKV:
			s, err = kvstore.New(ctx, cfg.Sinks.KV.URL, cfg.Sinks.KV.Bucket)
		default:
			err = fmt.Errorf("unknown sink %q", name)
		}
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// buildMirror opens the remote store and wires the media pipeline. It
// returns a nil mirror when no category is enabled.
func buildMirror(ctx context.Context, cfg *config.Config, cookie, userAgent string, m *metrics.Metrics, log logger.Logger) (*mirror.Mirror, func(), error) {
	noop := func() {}
	if !cfg.Media.AnyEnabled() {
		return nil, noop, nil
	}

	var (
		store   remote.Store
		closeFn = noop
	)
	switch cfg.Remote.Backend {
	case config.RemoteLocal:
		local, err := remote.NewLocalStore(cfg.Remote.Local.BaseDir)
		if err != nil {
			return nil, noop, err
		}
		store = local
	case config.RemoteGCS:
		client, err := remote.NewGCSClient(ctx, cfg.Remote.GCS.CredentialsFile)
		if err != nil {
			return nil, noop, err
		}
		gcs, err := remote.NewGCSStore(client, cfg.Remote.GCS.Bucket)
		if err != nil {
			client.Close()
			return nil, noop, err
		}
		if err := gcs.CheckBucket(ctx); err != nil {
			gcs.Close()
			return nil, noop, err
		}
		store = gcs
		closeFn = func() {
			if err := gcs.Close(); err != nil {
				log.WithError(err).Warn("Failed to close GCS client")
			}
		}
	default:
		return nil, noop, fmt.Errorf("media mirroring needs a remote backend, got %q", cfg.Remote.Backend)
	}

	dl := downloader.New(downloader.Options{
		Retries:        cfg.Media.DownloadRetries,
		ConnectTimeout: cfg.Media.ConnectTimeout,
		ReadTimeout:    cfg.Media.ReadTimeout,
		UserAgent:      userAgent,
		Cookie:         cookie,
	}, log)
	pool := downloader.NewPool(cfg.Media.DownloadWorkers, dl, nil, log)

	mir := mirror.New(store, pool, mirror.NewSidecar(cfg.Media.OutputDir), mirror.Options{
		Root:        cfg.Remote.RootFolder,
		FolderRetry: cfg.Remote.FolderRetry,
		Metrics:     m,
	}, log)
	return mir, closeFn, nil
}

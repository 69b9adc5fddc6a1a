// Command mediafeed replays page changes against a configured upstream and
// reports what the feed loads, plays and caches.
//
// Usage:
//
//	mediafeed -config feed.yaml -pages 0,1,2,3,2
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/mediapool"
	promcollector "github.com/hupe1980/mediapool/metrics/prometheus"
	"github.com/hupe1980/mediapool/upstream"
	"github.com/hupe1980/mediapool/upstream/minio"
	"github.com/hupe1980/mediapool/upstream/s3"
	"github.com/hupe1980/mediapool/window"
	miniogo "github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	pagesFlag := flag.String("pages", "0", "comma separated page indices to visit")
	dwell := flag.Duration("dwell", 250*time.Millisecond, "time spent on each page")
	flag.Parse()

	if err := run(*configPath, *pagesFlag, *dwell); err != nil {
		log.Fatal(err)
	}
}

func run(configPath, pagesFlag string, dwell time.Duration) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	pages, err := parsePages(pagesFlag)
	if err != nil {
		return err
	}
	logger, err := cfg.Logging.Logger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, resolver, err := newUpstream(ctx, cfg.Upstream)
	if err != nil {
		return err
	}
	keys, err := upstream.ResolveKeys(ctx, resolver, cfg.Feed.ContentIDs, 0)
	if err != nil {
		return fmt.Errorf("failed to resolve media keys: %w", err)
	}

	opts := cfg.Options(logger)
	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, mediapool.WithMetricsCollector(promcollector.New(reg)))
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	feed, err := mediapool.Open(ctx, fetcher, window.Keys(keys), opts...)
	if err != nil {
		return err
	}
	defer feed.Close()

	for _, page := range pages {
		if err := feed.PageChanged(page, len(keys)); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dwell):
		}
		state, err := feed.Snapshot()
		if err != nil {
			return err
		}
		printState(page, state)
	}

	stats := feed.CacheStats()
	fmt.Printf("cache: %d entries, %d/%d bytes, %d hits, %d misses, %d evictions, %d degraded writes\n",
		stats.Entries, stats.Size, stats.Capacity, stats.Hits, stats.Misses, stats.Evictions, stats.DegradedWrites)
	return nil
}

func printState(page int, s mediapool.State) {
	fmt.Printf("page %d (active %d):", page, s.Active)
	for _, r := range s.Resources {
		fmt.Printf(" [%d %s %s gen=%d]", r.Index, r.Key, r.State, r.Gen)
	}
	fmt.Println()
}

// newUpstream builds the fetcher and key resolver for cfg.
func newUpstream(ctx context.Context, cfg UpstreamConfig) (upstream.Fetcher, upstream.Resolver, error) {
	var none upstream.StaticResolver

	switch cfg.Type {
	case "memory":
		return syntheticFetcher(cfg.ObjectBytes), none, nil

	case "http":
		return upstream.NewHTTPFetcher(cfg.Endpoint, &http.Client{Timeout: cfg.Timeout}), none, nil

	case "s3":
		awsOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.Region),
			// Retries are owned by the read-through adapter.
			awsconfig.WithRetryMaxAttempts(1),
		}
		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		var client *awss3.Client
		if cfg.Endpoint != "" {
			client = awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
				o.UsePathStyle = true // Required for localstack/MinIO
			})
		} else {
			client = awss3.NewFromConfig(awsCfg)
		}
		fetcher := s3.NewFetcher(client, cfg.Bucket, cfg.Prefix)

		if cfg.Table == "" {
			return fetcher, none, nil
		}
		return fetcher, s3.NewVersionResolver(dynamodb.NewFromConfig(awsCfg), cfg.Table), nil

	case "minio":
		client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
			Creds:  miniocreds.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		return minio.NewFetcher(client, cfg.Bucket, cfg.Prefix), none, nil

	default:
		return nil, nil, fmt.Errorf("unsupported upstream type: %q", cfg.Type)
	}
}

// syntheticFetcher serves deterministic objects of size bytes for any key.
func syntheticFetcher(size int) upstream.Fetcher {
	return upstream.FetcherFunc(func(ctx context.Context, key string, r upstream.ByteRange) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if key == "" {
			return nil, upstream.NewPermanent(key, upstream.ErrInvalidKey)
		}
		obj := make([]byte, size)
		for i := range obj {
			obj[i] = key[i%len(key)]
		}
		return r.Slice(obj), nil
	})
}

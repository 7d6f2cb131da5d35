package presets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/config"
	memoryrepo "github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	fsstorage "github.com/tendant/simple-cms/pkg/simplecms/storage/fs"
	memorystorage "github.com/tendant/simple-cms/pkg/simplecms/storage/memory"
)

// Configuration Presets
//
// This package provides ready-made service wiring for common use cases.
// Presets remove boilerplate while staying customizable through options.

// NewDevelopment creates a service configured for local development.
//
// Features:
//   - In-memory record store (instant startup, no setup required)
//   - Filesystem attachments at ./dev-data/ (persistent across restarts)
//   - Lifecycle events logged through slog
//
// The returned cleanup function removes the storage directory.
//
// Example:
//
//	svc, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (simplecms.Service, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-data",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	fsBackend, err := fsstorage.New(fsstorage.Config{
		BaseDir: cfg.storageDir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create filesystem storage: %w", err)
	}

	svc, err := simplecms.New(
		simplecms.WithRepository(memoryrepo.New()),
		simplecms.WithBlobStore(fsBackend),
		simplecms.WithEventSink(simplecms.NewLoggingEventSink(cfg.logger)),
		simplecms.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}

	cleanup := func() {
		os.RemoveAll(cfg.storageDir)
	}
	return svc, cleanup, nil
}

// NewTesting creates a service configured for unit and integration tests:
// in-memory records and attachments, no event logging, isolated per call.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    svc := presets.NewTesting(t, presets.WithTestFixtures())
//	    // ...
//	}
func NewTesting(t testing.TB, opts ...TestingOption) simplecms.Service {
	t.Helper()

	cfg := &testConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	options := []simplecms.Option{
		simplecms.WithRepository(memoryrepo.New()),
		simplecms.WithBlobStore(memorystorage.New()),
		simplecms.WithLogger(slog.New(slog.DiscardHandler)),
	}
	options = append(options, cfg.options...)

	svc, err := simplecms.New(options...)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}

	if cfg.fixtures {
		if err := SeedFixtures(context.Background(), svc); err != nil {
			t.Fatalf("failed to seed fixtures: %v", err)
		}
	}
	return svc
}

// NewProduction builds a service from the environment through the config
// package. Memory record stores and memory attachment storage are refused.
//
// Required Environment Variables:
//   - DATABASE_URL: postgres://... or sqlite://path
//   - STORAGE_URL: file://dir or s3://bucket?region=...
//
// The returned cleanup function closes database handles.
func NewProduction(ctx context.Context, opts ...config.Option) (simplecms.Service, func(), error) {
	loadOpts := append([]config.Option{config.WithEnv(), config.WithEnvironment("production")}, opts...)
	cfg, err := config.Load(loadOpts...)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseType == config.DatabaseMemory {
		return nil, nil, fmt.Errorf("production preset requires a persistent database (postgres or sqlite, not memory)")
	}
	if cfg.Storage.Type == config.StorageMemory {
		return nil, nil, fmt.Errorf("production preset requires persistent storage (s3 or fs, not memory)")
	}

	rt, err := cfg.Build(ctx, cfg.NewLogger(os.Stderr))
	if err != nil {
		return nil, nil, err
	}
	return rt.Service, rt.Close, nil
}

// SeedFixtures creates one sample record per built-in resource. Resources
// not registered with svc are skipped.
func SeedFixtures(ctx context.Context, svc simplecms.Service) error {
	fixtures := map[string][]simplecms.Fields{
		simplecms.ResourceArticles: {
			{"title": "Writing a Strong Resume", "content": "Keep it to one page.", "category": "career", "is_published": true},
			{"title": "Internship Season Draft", "content": "Work in progress.", "category": "internship", "is_published": false},
		},
		simplecms.ResourceNews: {
			{"title": "Career Fair Announced", "body": "Forty employers confirmed.", "status": "published", "author": "career-center"},
		},
		simplecms.ResourceAnnouncements: {
			{"title": "Office Hours Change", "body": "Open until 5 PM on Fridays.", "expires_on": "2099-12-31"},
		},
	}

	for _, cfg := range svc.Resources() {
		for _, fields := range fixtures[cfg.Name] {
			if _, err := svc.CreateRecord(ctx, simplecms.CreateRecordRequest{
				Resource: cfg.Name,
				Fields:   fields.Clone(),
			}); err != nil {
				return fmt.Errorf("seed %s %q: %w", cfg.Name, strings.TrimSpace(fields.String("title")), err)
			}
		}
	}
	return nil
}

// Option types for customization

// devConfig holds development preset configuration
type devConfig struct {
	storageDir string
	logger     *slog.Logger
}

// testConfig holds testing preset configuration
type testConfig struct {
	fixtures bool
	options  []simplecms.Option
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the development storage directory
func WithDevStorage(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.storageDir = dir
	}
}

// WithDevLogger sets the logger used for service and event logging
func WithDevLogger(logger *slog.Logger) DevelopmentOption {
	return func(cfg *devConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestFixtures seeds sample records for every built-in resource
func WithTestFixtures() TestingOption {
	return func(cfg *testConfig) {
		cfg.fixtures = true
	}
}

// WithServiceOptions passes extra options to simplecms.New, e.g. a fixed clock
func WithServiceOptions(opts ...simplecms.Option) TestingOption {
	return func(cfg *testConfig) {
		cfg.options = append(cfg.options, opts...)
	}
}

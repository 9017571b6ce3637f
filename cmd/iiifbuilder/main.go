// Command iiifbuilder runs the ingest worker: it polls a preservation
// repository's activity stream, resolves identities and catalogue
// metadata, builds IIIF Presentation manifests, and publishes them to a
// downstream IIIF cloud service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/digirati-co-uk/iiif-builder/catalogue"
	"github.com/digirati-co-uk/iiif-builder/config"
	"github.com/digirati-co-uk/iiif-builder/coordinator"
	"github.com/digirati-co-uk/iiif-builder/httpclient"
	"github.com/digirati-co-uk/iiif-builder/identity"
	"github.com/digirati-co-uk/iiif-builder/logging"
	"github.com/digirati-co-uk/iiif-builder/manifest"
	"github.com/digirati-co-uk/iiif-builder/metrics"
	"github.com/digirati-co-uk/iiif-builder/preservation"
	"github.com/digirati-co-uk/iiif-builder/publisher"
	"github.com/digirati-co-uk/iiif-builder/store"
	"github.com/digirati-co-uk/iiif-builder/streamreader"
	"github.com/digirati-co-uk/iiif-builder/version"
)

func main() {
	root := &cobra.Command{
		Use:   "iiifbuilder",
		Short: "Turns preservation activity events into published IIIF manifests",
		RunE:  run,
	}
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build version information",
		Run: func(cmd *cobra.Command, args []string) {
			full, _ := cmd.Flags().GetBool("full")
			if !full {
				fmt.Println(version.GetMainVersion())
				return
			}
			info := version.GetBuildInfo()
			fmt.Printf("%s %s (go %s)\n", info.MainModule, info.MainVersion, info.GoVersion)
			for _, dep := range info.Dependencies {
				if dep.Replace != "" {
					fmt.Printf("  %s %s => %s\n", dep.Path, dep.Version, dep.Replace)
				} else {
					fmt.Printf("  %s %s\n", dep.Path, dep.Version)
				}
			}
		},
	}
	versionCmd.Flags().Bool("full", false, "print full build info including every dependency")
	root.AddCommand(versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:   settings.LogLevel,
		Format:  settings.LogFormat,
		Service: "iiifbuilder",
		Version: version.GetMainVersion(),
	})
	log := logging.WithFields(logger, map[string]interface{}{"service": "iiifbuilder"})

	jobStore, err := store.Open(settings.PostgresConnection, settings.ActivityCutoff)
	if err != nil {
		return fmt.Errorf("opening job store: %w", err)
	}
	if err := jobStore.Migrate(); err != nil {
		return fmt.Errorf("migrating job store: %w", err)
	}

	httpClient := httpclient.New()

	preservationClient, err := preservation.New(httpClient, preservation.Config{
		TenantID:       settings.PreservationClientTenantID,
		ClientID:       settings.PreservationClientID,
		ClientSecret:   settings.PreservationClientSecret,
		IdentityHeader: settings.PreservationIdentityHeaderKey,
		IdentityValue:  settings.PreservationIdentityValue,
	})
	if err != nil {
		return fmt.Errorf("building preservation client: %w", err)
	}

	identityResolver := identity.New(httpClient, identity.Config{
		BaseURL:      settings.IdentityServiceBaseURL,
		APIHeader:    settings.IdentityServiceAPIHeader,
		APIKey:       settings.IdentityServiceAPIKey,
		Aliases:      identity.ParseAliases(settings.PreservationContainerAliases, settings.PreservationHostAliases),
		PublicPrefix: settings.RewrittenPublicIIIFPrefix,
		CSHost:       settings.IIIFCSPresentationHost,
		CustomerID:   settings.IIIFCSCustomerID,
	})

	catalogueClient := catalogue.New(httpClient, settings.CatalogueAPIKeyHeader, settings.CatalogueAPIKeyValue)
	manifestBuilder := manifest.New()
	iiifPublisher := publisher.New(httpClient, settings.IIIFCSBasicCredentials)

	recorder, registry := metrics.NewRecorder()
	metricsServer := metrics.NewServer(settings.MetricsAddr, registry)

	jobCoordinator := coordinator.New(
		preservationClient,
		identityResolver,
		catalogueClient,
		manifestBuilder,
		iiifPublisher,
		jobStore,
		log,
		recorder,
		coordinator.Config{
			ArchivalGroupPrefixes:    settings.ArchivalGroupPrefixes,
			AssetSpace:               settings.IIIFCSAssetSpaceID,
			ConstructCatalogueAPIURI: settings.ConstructCatalogueAPIURI,
			CatalogueAPIPrefix:       settings.CatalogueAPIPrefix,
		},
	)

	reader := streamreader.New(preservationClient, jobCoordinator, jobStore, log, streamreader.Config{
		StreamURI:    settings.PreservationActivityStream,
		PollInterval: settings.ActivityStreamReadInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		log.Info("shutdown signal received")
		cancel()
	}()

	go func() {
		if err := metricsServer.Start(ctx); err != nil {
			log.WithError(err).Warn("metrics server stopped unexpectedly")
		}
	}()

	log.Info("starting stream reader")
	reader.Start(ctx)
	log.Info("stream reader stopped, exiting")
	return nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/slices"

	"github.com/fastpix01-lab/video-benchmark/benchmark"
	"github.com/fastpix01-lab/video-benchmark/export"
	"github.com/fastpix01-lab/video-benchmark/probe"
	"github.com/fastpix01-lab/video-benchmark/provider"
	"github.com/fastpix01-lab/video-benchmark/provider/apivideo"
	"github.com/fastpix01-lab/video-benchmark/provider/cloudinary"
	"github.com/fastpix01-lab/video-benchmark/provider/fastpix"
	"github.com/fastpix01-lab/video-benchmark/provider/gumlet"
	"github.com/fastpix01-lab/video-benchmark/provider/mux"
	"github.com/fastpix01-lab/video-benchmark/provider/vimeo"
	"github.com/fastpix01-lab/video-benchmark/relay"
	"github.com/fastpix01-lab/video-benchmark/transport"
)

func setConfig(configPath string) error {
	log.Debug().Msg("setting up config default values")
	viper.SetDefault("benchmark.enabled", benchmark.DefaultEnabled)
	viper.SetDefault("benchmark.advanced", false)
	viper.SetDefault("benchmark.network_preset", "3g")
	viper.SetDefault("benchmark.origin", "")
	viper.SetDefault("benchmark.relay_providers", []string{})

	viper.SetDefault("relay.listen_addr", ":8080")
	viper.SetDefault("relay.base_url", "")

	viper.SetConfigFile(configPath)

	if _, err := os.Stat(configPath); err == nil {
		log.Debug().Str("config_path", configPath).Msg("reading config file")

		if err = viper.ReadInConfig(); err != nil {
			return errors.Wrap(err, "cannot read config file")
		}
	}

	envBindingMap := map[string]string{
		"provider.mux.token_id":          "MUX_TOKEN_ID",
		"provider.mux.token_secret":      "MUX_TOKEN_SECRET",
		"provider.fastpix.access_token":  "FASTPIX_ACCESS_TOKEN",
		"provider.fastpix.secret_key":    "FASTPIX_SECRET_KEY",
		"provider.apivideo.api_key":      "APIVIDEO_API_KEY",
		"provider.cloudinary.cloud_name": "CLOUDINARY_CLOUD_NAME",
		"provider.cloudinary.api_key":    "CLOUDINARY_API_KEY",
		"provider.cloudinary.api_secret": "CLOUDINARY_API_SECRET",
		"provider.gumlet.api_key":        "GUMLET_API_KEY",
		"provider.gumlet.collection_id":  "GUMLET_COLLECTION_ID",
		"provider.vimeo.access_token":    "VIMEO_ACCESS_TOKEN",
	}

	for key, env := range envBindingMap {
		if err := viper.BindEnv(key, env); err != nil {
			return errors.Wrap(err, "cannot bind env variable")
		}
	}

	return nil
}

// buildRegistry registers every vendor whose credentials are configured, in
// the canonical comparison order. Unconfigured vendors are skipped with a
// warning instead of failing the run.
func buildRegistry() *provider.Registry {
	relayProviders := viper.GetStringSlice("benchmark.relay_providers")

	var entries []provider.Entry

	register := func(slug string, build func() (provider.Provider, error), configured bool) {
		if !configured {
			log.Warn().Str("provider", slug).Msg("credentials not configured, skipping")
			return
		}

		prov, err := build()
		if err != nil {
			log.Warn().Err(err).Str("provider", slug).Msg("cannot create provider, skipping")
			return
		}

		entries = append(entries, provider.Entry{
			Provider: prov,
			Relay:    slices.Contains(relayProviders, slug),
		})
	}

	register("mux", func() (provider.Provider, error) {
		return mux.New(mux.Config{
			TokenID:     viper.GetString("provider.mux.token_id"),
			TokenSecret: viper.GetString("provider.mux.token_secret"),
		})
	}, viper.GetString("provider.mux.token_id") != "" && viper.GetString("provider.mux.token_secret") != "")

	register("fastpix", func() (provider.Provider, error) {
		return fastpix.New(fastpix.Config{
			AccessToken: viper.GetString("provider.fastpix.access_token"),
			SecretKey:   viper.GetString("provider.fastpix.secret_key"),
		})
	}, viper.GetString("provider.fastpix.access_token") != "" && viper.GetString("provider.fastpix.secret_key") != "")

	register("apivideo", func() (provider.Provider, error) {
		return apivideo.New(apivideo.Config{
			APIKey: viper.GetString("provider.apivideo.api_key"),
		})
	}, viper.GetString("provider.apivideo.api_key") != "")

	register("cloudinary", func() (provider.Provider, error) {
		return cloudinary.New(cloudinary.Config{
			CloudName: viper.GetString("provider.cloudinary.cloud_name"),
			APIKey:    viper.GetString("provider.cloudinary.api_key"),
			APISecret: viper.GetString("provider.cloudinary.api_secret"),
		})
	}, viper.GetString("provider.cloudinary.cloud_name") != "" && viper.GetString("provider.cloudinary.api_key") != "")

	register("gumlet", func() (provider.Provider, error) {
		return gumlet.New(gumlet.Config{
			APIKey:       viper.GetString("provider.gumlet.api_key"),
			CollectionID: viper.GetString("provider.gumlet.collection_id"),
		})
	}, viper.GetString("provider.gumlet.api_key") != "")

	register("vimeo", func() (provider.Provider, error) {
		return vimeo.New(vimeo.Config{
			AccessToken: viper.GetString("provider.vimeo.access_token"),
		})
	}, viper.GetString("provider.vimeo.access_token") != "")

	return provider.NewRegistry(entries...)
}

func openFiles(paths []string) ([]transport.File, func(), error) {
	files := make([]transport.File, 0, len(paths))
	handles := make([]*os.File, 0, len(paths))

	closeAll := func() {
		for _, handle := range handles {
			handle.Close()
		}
	}

	for _, path := range paths {
		handle, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, errors.Wrapf(err, "cannot open %s", path)
		}

		info, err := handle.Stat()
		if err != nil {
			handle.Close()
			closeAll()
			return nil, nil, errors.Wrapf(err, "cannot stat %s", path)
		}

		handles = append(handles, handle)
		files = append(files, transport.File{
			Name:    filepath.Base(path),
			Size:    info.Size(),
			Content: handle,
		})
	}

	return files, closeAll, nil
}

func runBenchmark(configPath, csvPath, jsonPath string, paths []string) error {
	if err := setConfig(configPath); err != nil {
		return err
	}

	if len(paths) == 0 {
		return errors.New("no input files given")
	}

	files, closeFiles, err := openFiles(paths)
	if err != nil {
		return err
	}
	defer closeFiles()

	presetKey := viper.GetString("benchmark.network_preset")

	preset, found := probe.NetworkPresets[presetKey]
	if !found {
		return errors.Errorf("unknown network preset: %s", presetKey)
	}

	var relayClient benchmark.RelayUploader
	if baseURL := viper.GetString("relay.base_url"); baseURL != "" {
		relayClient = transport.NewRelayClient(baseURL, nil)
	}

	session := benchmark.NewSession(benchmark.SessionConfig{
		OnProgress: func(progress benchmark.Progress) {
			log.Info().
				Str("file", progress.FileName).
				Str("provider", progress.ProviderSlug).
				Str("step", string(progress.Step)).
				Msg(progress.Detail)
		},
	})

	engine, err := benchmark.NewEngine(benchmark.EngineConfig{
		Registry: buildRegistry(),
		Uploader: transport.NewUploader(transport.Config{}),
		Relay:    relayClient,
		Prober:   probe.New(probe.Config{Builder: &probe.HLSBuilder{}}),
		Session:  session,
		Enabled:  viper.GetStringSlice("benchmark.enabled"),
		Advanced: viper.GetBool("benchmark.advanced"),
		Preset:   preset,
		Origin:   viper.GetString("benchmark.origin"),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runs, err := engine.Run(ctx, files)
	if errors.Is(err, benchmark.ErrCancelled) {
		log.Warn().Msg("benchmark cancelled, keeping completed results")
	} else if err != nil {
		return err
	}

	printRuns(runs)

	if len(files) > 1 {
		printAggregates(benchmark.AggregateRuns(runs))
	}

	return writeExports(runs, csvPath, jsonPath)
}

func printRuns(runs []benchmark.Run) {
	for _, run := range runs {
		fmt.Printf("\n%s\n", run.FileName)

		for _, result := range run.Results {
			if result.Status != benchmark.StatusSuccess {
				fmt.Printf("  %-12s failed: %s\n", result.ProviderName, result.Error)
				continue
			}

			fmt.Printf(
				"  %-12s upload %6dms  processing %6dms  startup %6dms  total %6dms\n",
				result.ProviderName,
				result.UploadMs,
				result.ProcessingMs,
				result.StartupMs,
				result.TotalMs,
			)

			if result.Advanced != nil {
				fmt.Printf(
					"  %-12s %s: startup %dms, %d rebuffers (%.4f), smoothness %d\n",
					"",
					result.Advanced.NetworkPreset,
					result.Advanced.ThrottledStartupMs,
					result.Advanced.RebufferCount,
					result.Advanced.RebufferRatio,
					result.Advanced.SmoothnessScore,
				)
			}
		}
	}
}

func printAggregates(aggregates []benchmark.Aggregate) {
	fmt.Printf("\naverages over %d providers\n", len(aggregates))

	for _, aggregate := range aggregates {
		fmt.Printf(
			"  %-12s upload %6dms  processing %6dms  startup %6dms  total %6dms  (%d files)\n",
			aggregate.ProviderName,
			aggregate.UploadMs,
			aggregate.ProcessingMs,
			aggregate.StartupMs,
			aggregate.TotalMs,
			aggregate.FileCount,
		)
	}
}

func writeExports(runs []benchmark.Run, csvPath, jsonPath string) error {
	if csvPath != "" {
		file, err := os.Create(csvPath)
		if err != nil {
			return errors.Wrap(err, "cannot create csv file")
		}
		defer file.Close()

		if err = export.WriteCSV(file, runs); err != nil {
			return err
		}

		log.Info().Str("path", csvPath).Msg("wrote csv export")
	}

	if jsonPath != "" {
		file, err := os.Create(jsonPath)
		if err != nil {
			return errors.Wrap(err, "cannot create json file")
		}
		defer file.Close()

		if err = export.WriteJSON(file, runs, time.Now()); err != nil {
			return err
		}

		log.Info().Str("path", jsonPath).Msg("wrote json export")
	}

	token, err := export.EncodeShare(runs)
	if err != nil {
		return errors.Wrap(err, "cannot encode share token")
	}

	fmt.Printf("\nshare token: %s\n", token)

	return nil
}

func serveRelay(configPath string) error {
	if err := setConfig(configPath); err != nil {
		return err
	}

	server, err := relay.NewServer(relay.Config{
		Registry: buildRegistry(),
		Uploader: transport.NewUploader(transport.Config{}),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("relay shutdown failed")
		}
	}()

	listenAddr := viper.GetString("relay.listen_addr")
	log.Info().Str("listen_addr", listenAddr).Msg("starting relay")

	if err = server.Start(listenAddr); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}

	var configPath, csvPath, jsonPath string

	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "path to the config file",
		Value:       "./config.toml",
		Destination: &configPath,
	}

	app := &cli.App{
		Name:  "videobench",
		Usage: "benchmark video hosting providers end to end",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "benchmark the given video files against all configured providers",
				ArgsUsage: "FILE [FILE...]",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:        "csv",
						Usage:       "write a csv export to this path",
						Destination: &csvPath,
					},
					&cli.StringFlag{
						Name:        "json",
						Usage:       "write a json export to this path",
						Destination: &jsonPath,
					},
				},
				Action: func(c *cli.Context) error {
					return runBenchmark(configPath, csvPath, jsonPath, c.Args().Slice())
				},
			},
			{
				Name:  "serve-relay",
				Usage: "run the same-origin upload relay",
				Flags: []cli.Flag{configFlag},
				Action: func(c *cli.Context) error {
					return serveRelay(configPath)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

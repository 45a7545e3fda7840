package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huemood/internal/app"
	"github.com/dokzlo13/huemood/internal/bridge"
	"github.com/dokzlo13/huemood/internal/config"
)

// maxSecondsEnv overrides the configured transition cap when the flag is
// not given. Precedence: flag, then env, then config, then default.
const maxSecondsEnv = "HUEMOOD_MAX_SECONDS"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	var bulbsFlag string
	flag.StringVar(&bulbsFlag, "bulbs", "", "Comma-separated bulb names to control (overrides config)")
	var maxSeconds float64
	flag.Float64Var(&maxSeconds, "max-seconds", 0, "Maximum transition duration in seconds")
	flag.Float64Var(&maxSeconds, "M", 0, "Maximum transition duration in seconds (shorthand)")
	jsonState := flag.Bool("json-state", false, "Print the bridge's current light states as JSON before starting")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg.Log.GetLevel(), cfg.Log.UseJSON, cfg.Log.Colors)

	applyMaxSecondsOverride(cfg, maxSeconds)

	// Credentials must be present before any network activity.
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("config", configPath).
		Str("bridge", cfg.Hue.Bridge).
		Str("token", config.RedactToken(cfg.Hue.Token)).
		Dur("max_transition", cfg.Mood.MaxTransition.Duration()).
		Msg("Starting huemood")

	if *jsonState {
		if err := printLightStates(cfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to read light states")
		}
	}

	var bulbs []string
	if bulbsFlag != "" {
		for _, b := range strings.Split(bulbsFlag, ",") {
			if b = strings.TrimSpace(b); b != "" {
				bulbs = append(bulbs, b)
			}
		}
	}

	application, err := app.New(cfg, bulbs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	ctx := app.SignalContext()

	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	application.Wait()

	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
}

// applyMaxSecondsOverride resolves the transition cap from the flag or the
// environment, clamping to the minimum transition duration.
func applyMaxSecondsOverride(cfg *config.Config, flagSeconds float64) {
	seconds := flagSeconds
	if seconds == 0 {
		if env := os.Getenv(maxSecondsEnv); env != "" {
			parsed, err := strconv.ParseFloat(env, 64)
			if err != nil {
				log.Warn().Str("value", env).Msgf("Ignoring unparseable %s", maxSecondsEnv)
			} else {
				seconds = parsed
			}
		}
	}
	if seconds == 0 {
		return
	}

	max := time.Duration(seconds * float64(time.Second))
	if max < config.MinTransition {
		max = config.MinTransition
	}
	cfg.Mood.MaxTransition = config.Duration(max)
}

// printLightStates dumps the bridge's lights as indented JSON to stdout.
func printLightStates(cfg *config.Config) error {
	client := bridge.NewClient(cfg.Hue.Bridge, cfg.Hue.Token, cfg.Hue.Timeout.Duration(), cfg.Mood.RateLimitRPS)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Hue.Timeout.Duration())
	defer cancel()

	lights, err := client.Lights(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(lights, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func setupLogging(level string, useJSON bool, colors bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

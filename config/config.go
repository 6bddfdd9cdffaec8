// Package config turns flags, CUEWORD_* environment variables and an
// optional .env file into the server configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"cueword/game"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "CUEWORD"

type Config struct {
	EnvFile string

	Bind           string
	Port           int
	PublicURL      string
	AllowedOrigins []string
	PostgresURL    string
	JWTKey         string
	TrollTime      time.Duration
	TickInterval   time.Duration
	Debug          bool

	MaxPlayers          int
	MinPlayers          int
	CycleDurations      []time.Duration
	StartCountdown      int
	InterRoundCountdown int
	CountdownStep       time.Duration
	ReconnectionGrace   time.Duration
	IdleDispose         time.Duration
	CollaboratorTimeout time.Duration
	Scores              []int
	PausePolicy         string
	RestartPolicy       string
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Settings builds the room settings the lobby hands to every new room.
func (c *Config) Settings() (game.Settings, error) {
	if len(c.CycleDurations) != game.MaxCycle {
		return game.Settings{}, fmt.Errorf("expected %d cycle durations, got %d", game.MaxCycle, len(c.CycleDurations))
	}
	if len(c.Scores) != game.MaxCycle {
		return game.Settings{}, fmt.Errorf("expected %d scores, got %d", game.MaxCycle, len(c.Scores))
	}
	pause, err := game.ParsePausePolicy(c.PausePolicy)
	if err != nil {
		return game.Settings{}, err
	}
	restart, err := game.ParseRestartPolicy(c.RestartPolicy)
	if err != nil {
		return game.Settings{}, err
	}

	s := game.Settings{
		MaxPlayers:          c.MaxPlayers,
		MinPlayers:          c.MinPlayers,
		StartCountdown:      c.StartCountdown,
		InterRoundCountdown: c.InterRoundCountdown,
		CountdownStep:       c.CountdownStep,
		ReconnectionGrace:   c.ReconnectionGrace,
		IdleDispose:         c.IdleDispose,
		CollaboratorTimeout: c.CollaboratorTimeout,
		PausePolicy:         pause,
		RestartPolicy:       restart,
	}
	copy(s.CycleDurations[:], c.CycleDurations)
	copy(s.Scores[:], c.Scores)
	return s, s.Validate()
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.PostgresURL == "" {
		return errors.New("missing postgres url (--postgres-url or CUEWORD_POSTGRES_URL)")
	}
	if c.JWTKey == "" {
		return errors.New("missing jwt signing key (--jwt-key or CUEWORD_JWT_KEY)")
	}
	if len(c.AllowedOrigins) == 0 {
		return errors.New("missing allowed origins (--allowed-origins or CUEWORD_ALLOWED_ORIGINS)")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive: %s", c.TickInterval)
	}
	if c.TrollTime < 0 {
		return fmt.Errorf("troll time cannot be negative: %s", c.TrollTime)
	}
	if _, err := c.Settings(); err != nil {
		return fmt.Errorf("invalid game settings: %w", err)
	}
	return nil
}

// NewRootCommand returns the server command. run is only called with a
// validated configuration.
func NewRootCommand(cfg *Config, run func(cmd *cobra.Command, cfg *Config) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cueword",
		Short: "Realtime word guessing rooms where cues are revealed one by one.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}
	Bind(cmd, cfg)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd
}

// Bind registers every option as a persistent flag of cmd. Before any
// command runs, flags left unset are filled from the environment, which may
// itself be seeded from the env file.
func Bind(cmd *cobra.Command, cfg *Config) {
	defaults := game.DefaultSettings()

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.EnvFile, "env-file", ".env", "dotenv file to load if present")

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: CUEWORD_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 5000, "port to listen on (env: CUEWORD_PORT)")
	fs.StringVar(&cfg.PublicURL, "public-url", "http://localhost:5173", "base url join links point to (env: CUEWORD_PUBLIC_URL)")
	fs.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", nil, "origins allowed to call the api (env: CUEWORD_ALLOWED_ORIGINS)")
	fs.StringVar(&cfg.PostgresURL, "postgres-url", "", "postgres connection string (env: CUEWORD_POSTGRES_URL)")
	fs.StringVar(&cfg.JWTKey, "jwt-key", "", "identity token signing key (env: CUEWORD_JWT_KEY)")
	fs.DurationVar(&cfg.TrollTime, "troll-time", 2*time.Second, "delay before answering forged tokens (env: CUEWORD_TROLL_TIME)")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", 100*time.Millisecond, "how often room clocks are advanced (env: CUEWORD_TICK_INTERVAL)")
	fs.BoolVarP(&cfg.Debug, "debug", "d", false, "human readable debug logs (env: CUEWORD_DEBUG)")

	fs.IntVar(&cfg.MaxPlayers, "max-players", defaults.MaxPlayers, "room capacity (env: CUEWORD_MAX_PLAYERS)")
	fs.IntVar(&cfg.MinPlayers, "min-players", defaults.MinPlayers, "connected players needed to start (env: CUEWORD_MIN_PLAYERS)")
	fs.DurationSliceVar(&cfg.CycleDurations, "cycle-durations", defaults.CycleDurations[:], "length of each reveal cycle (env: CUEWORD_CYCLE_DURATIONS)")
	fs.IntVar(&cfg.StartCountdown, "start-countdown", defaults.StartCountdown, "countdown steps before each round (env: CUEWORD_START_COUNTDOWN)")
	fs.IntVar(&cfg.InterRoundCountdown, "inter-round-countdown", defaults.InterRoundCountdown, "countdown steps on the round summary (env: CUEWORD_INTER_ROUND_COUNTDOWN)")
	fs.DurationVar(&cfg.CountdownStep, "countdown-step", defaults.CountdownStep, "length of one countdown step (env: CUEWORD_COUNTDOWN_STEP)")
	fs.DurationVar(&cfg.ReconnectionGrace, "reconnection-grace", defaults.ReconnectionGrace, "how long a dropped player keeps their slot (env: CUEWORD_RECONNECTION_GRACE)")
	fs.DurationVar(&cfg.IdleDispose, "idle-dispose", defaults.IdleDispose, "how long an empty room lives (env: CUEWORD_IDLE_DISPOSE)")
	fs.DurationVar(&cfg.CollaboratorTimeout, "collaborator-timeout", defaults.CollaboratorTimeout, "deadline for catalog and game record calls (env: CUEWORD_COLLABORATOR_TIMEOUT)")
	fs.IntSliceVar(&cfg.Scores, "scores", defaults.Scores[:], "points for a correct guess in each cycle (env: CUEWORD_SCORES)")
	fs.StringVar(&cfg.PausePolicy, "pause-policy", "owner", "who may pause: owner or any (env: CUEWORD_PAUSE_POLICY)")
	fs.StringVar(&cfg.RestartPolicy, "restart-policy", "any", "restart votes needed: any or unanimous (env: CUEWORD_RESTART_POLICY)")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(cfg.EnvFile); err != nil {
			return err
		}
		return applyEnv(fs)
	}
}

// loadEnvFile never overrides variables that are already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func applyEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := fs.Set(f.Name, v.GetString(f.Name)); err != nil {
			errs = append(errs, fmt.Errorf("%s_%s: %w", envPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
		}
	})
	return errors.Join(errs...)
}

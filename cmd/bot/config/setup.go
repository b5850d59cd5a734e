package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Jacobbrewer1/howl/pkg/entities"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var (
	// EnvFile is a dotenv file loaded before the environment is read. Defaults to ".env" when present.
	EnvFile string

	// PolicyFile is a YAML ticketing policy. Environment values override it.
	PolicyFile string
)

// RegisterFlags adds the process flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&EnvFile, "env-file", "", "dotenv file to load before reading the environment")
	fs.StringVar(&PolicyFile, "policy-file", "", "YAML ticketing policy file")
}

// Parse reads the configuration from the environment and the policy file.
func Parse(l *slog.Logger) error {
	if err := loadEnvFile(l); err != nil {
		return err
	}

	Transport = strings.ToLower(envString(l, EnvTransport, TransportMatrix))
	MatrixHomeserver = strings.TrimRight(envString(l, EnvMatrixHomeserver, ""), "/")
	MatrixUserID = envString(l, EnvMatrixUserID, "")
	MatrixAccessToken = envString(l, EnvMatrixAccessToken, "")
	BotToken = envString(l, EnvBotToken, "")
	ApplicationId = envString(l, EnvApplicationId, "")
	GuildId = envString(l, EnvGuildId, "")
	TicketCategoryId = envString(l, EnvTicketCategoryId, "")
	Store = strings.ToLower(envString(l, EnvStore, StoreSQLite))
	SQLitePath = envString(l, EnvSQLitePath, defaultSQLitePath)
	MongoUri = envString(l, EnvMongoUri, "")
	AmqpUrl = envString(l, EnvAmqpUrl, "")
	AmqpExchange = envString(l, EnvAmqpExchange, defaultAmqpExchange)

	var err error
	if MatrixPurgeRooms, err = envBool(l, EnvMatrixPurgeRooms, false); err != nil {
		return err
	}
	if RequestsPerSecond, err = envFloat(l, EnvRequestsPerSecond, 0); err != nil {
		return err
	}

	MonitoringPort = envString(l, EnvMonitoringPort, "")
	if MonitoringPort == "" {
		// Default to 8080 if not provided.
		MonitoringPort = defaultMonitoringPort
		l.Info("No monitoring port provided in environment, defaulting to 8080", slog.String("key", EnvMonitoringPort))
	}

	if Ticketing, err = parseTicketing(l); err != nil {
		return err
	}

	if err := validate(); err != nil {
		return err
	}

	l.Debug("All required configuration has been provided",
		slog.String("transport", Transport),
		slog.String("store", Store),
	)
	return nil
}

func loadEnvFile(l *slog.Logger) error {
	if EnvFile != "" {
		if err := godotenv.Load(EnvFile); err != nil {
			return fmt.Errorf("error loading env file %s: %w", EnvFile, err)
		}
		l.Debug("Loaded env file", slog.String("path", EnvFile))
		return nil
	}

	// The default file is optional.
	if err := godotenv.Load(); err == nil {
		l.Debug("Loaded env file", slog.String("path", ".env"))
	}
	return nil
}

func parseTicketing(l *slog.Logger) (*entities.TicketingConfig, error) {
	cfg := entities.NewTicketingConfig()

	path := PolicyFile
	if path == "" {
		path = envString(l, EnvPolicyFile, "")
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("error opening policy file: %w", err)
		}
		defer f.Close()

		if err := DecodePolicy(f, cfg); err != nil {
			return nil, fmt.Errorf("error reading policy file %s: %w", path, err)
		}
		l.Debug("Loaded policy file", slog.String("path", path))
	}

	var err error
	if cfg.Retention, err = envDuration(l, EnvTicketRetention, cfg.Retention); err != nil {
		return nil, err
	}
	if cfg.Inactivity, err = envDuration(l, EnvTicketInactivity, cfg.Inactivity); err != nil {
		return nil, err
	}
	if cfg.KickOnClose, err = envBool(l, EnvTicketKickOnClose, cfg.KickOnClose); err != nil {
		return nil, err
	}
	if cfg.ClosePowerLevel, err = envInt(l, EnvTicketClosePowerLevel, cfg.ClosePowerLevel); err != nil {
		return nil, err
	}
	if v := envString(l, EnvTicketAdmins, ""); v != "" {
		cfg.AdminPrincipals = splitList(v)
	}
	if v := envString(l, EnvTicketBanned, ""); v != "" {
		cfg.BannedPrincipals = splitList(v)
	}
	cfg.LogRoom = envString(l, EnvTicketLogRoom, cfg.LogRoom)
	cfg.CloseAuthority = entities.CloseAuthority(strings.ToLower(envString(l, EnvTicketCloseAuthority, string(cfg.CloseAuthority))))
	cfg.PublicBaseURL = strings.TrimRight(envString(l, EnvPublicBaseURL, cfg.PublicBaseURL), "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ticketing policy: %w", err)
	}
	return cfg, nil
}

// DecodePolicy reads a YAML ticketing policy over cfg. Keys that are absent keep their value.
func DecodePolicy(r io.Reader, cfg *entities.TicketingConfig) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error decoding policy: %w", err)
	}
	return nil
}

func validate() error {
	switch Transport {
	case TransportMatrix:
		if MatrixHomeserver == "" || MatrixAccessToken == "" {
			return fmt.Errorf("%s and %s are required for the matrix transport", EnvMatrixHomeserver, EnvMatrixAccessToken)
		}
	case TransportDiscord:
		if BotToken == "" || ApplicationId == "" || GuildId == "" {
			return fmt.Errorf("%s, %s and %s are required for the discord transport", EnvBotToken, EnvApplicationId, EnvGuildId)
		}
	default:
		return fmt.Errorf("unknown transport %q", Transport)
	}

	switch Store {
	case StoreSQLite:
		if SQLitePath == "" {
			return fmt.Errorf("%s is required for the sqlite store", EnvSQLitePath)
		}
	case StoreMongo:
		if MongoUri == "" {
			return fmt.Errorf("%s is required for the mongo store", EnvMongoUri)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", Store)
	}
	return nil
}

func envString(l *slog.Logger, key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	l.Debug("Found value in environment", slog.String("key", key))
	return v
}

func envBool(l *slog.Logger, key string, def bool) (bool, error) {
	v := envString(l, key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("error parsing %s: %w", key, err)
	}
	return b, nil
}

func envInt(l *slog.Logger, key string, def int) (int, error) {
	v := envString(l, key, "")
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("error parsing %s: %w", key, err)
	}
	return i, nil
}

func envFloat(l *slog.Logger, key string, def float64) (float64, error) {
	v := envString(l, key, "")
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing %s: %w", key, err)
	}
	return f, nil
}

func envDuration(l *slog.Logger, key string, def time.Duration) (time.Duration, error) {
	v := envString(l, key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("error parsing %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

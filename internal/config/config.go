// Package config loads bot settings from the environment, an optional .env
// file and an optional YAML/JSON/TOML config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ytdlp-telegram-bot/internal/domain"
)

// Setting keys. Env names are YTBOT_<KEY> with dots replaced by underscores,
// except for the keys bound to their historical names below.
const (
	KeyBotToken         = "bot_token"
	KeyJWTSecret        = "jwt_secret"
	KeyDataDir          = "data_dir"
	KeyChmod            = "chmod"
	KeyTempDir          = "temp_dir"
	KeyUsersFile        = "users_file"
	KeyCleanupDelay     = "cleanup_delay"
	KeyProgressInterval = "progress_interval"
	KeyTokenTTL         = "token_ttl"
	KeyListLimit        = "list_limit"
	KeyHTTPAddr         = "http_addr"
	KeyLogLevel         = "log.level"
	KeyLogFormat        = "log.format"
	KeyYtDlp            = "tools.ytdlp"
	KeyFFmpeg           = "tools.ffmpeg"
	KeyFFprobe          = "tools.ffprobe"
	KeyConvert          = "tools.convert"
)

// EnvPrefix prefixes every environment variable without a historical name.
const EnvPrefix = "YTBOT"

var legacyEnv = map[string]string{
	KeyBotToken:  "TELEGRAM_BOT_TOKEN",
	KeyJWTSecret: "JWT_SECRET",
	KeyDataDir:   "DATA_DIRECTORY",
	KeyChmod:     "CHMOD",
}

// ErrInvalidSettings wraps every validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

// Load reads .env files (missing files are ignored), then the optional config
// file, then the environment, and validates the result.
func Load(configFile string, envFiles ...string) (domain.Settings, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return domain.Settings{}, err
	}

	v, err := newViper(configFile)
	if err != nil {
		return domain.Settings{}, err
	}

	settings := fromViper(v)
	if err := Validate(settings); err != nil {
		return settings, err
	}
	return settings, nil
}

// Validate rejects settings the bot cannot start with.
func Validate(s domain.Settings) error {
	var errs []error
	if strings.TrimSpace(s.BotToken) == "" {
		errs = append(errs, errors.New("bot token is required (TELEGRAM_BOT_TOKEN)"))
	}
	if strings.TrimSpace(s.JWTSecret) == "" {
		errs = append(errs, errors.New("jwt secret is required (JWT_SECRET)"))
	}
	if strings.TrimSpace(s.DataDir) == "" {
		errs = append(errs, errors.New("data directory is required (DATA_DIRECTORY)"))
	}
	if s.ChmodMode != "" {
		if _, err := strconv.ParseUint(s.ChmodMode, 8, 32); err != nil {
			errs = append(errs, fmt.Errorf("chmod mode %q is not an octal mode", s.ChmodMode))
		}
	}
	if s.ProgressInterval < 0 || s.CleanupDelay < 0 || s.TokenTTL < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if s.ListLimit <= 0 {
		errs = append(errs, fmt.Errorf("list limit must be positive, got %d", s.ListLimit))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
}

func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", file, err)
		}
	}
	return nil
}

func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, DefaultSettings())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper, d domain.Settings) {
	v.SetDefault(KeyBotToken, d.BotToken)
	v.SetDefault(KeyJWTSecret, d.JWTSecret)
	v.SetDefault(KeyDataDir, d.DataDir)
	v.SetDefault(KeyChmod, d.ChmodMode)
	v.SetDefault(KeyTempDir, d.TempDir)
	v.SetDefault(KeyUsersFile, d.UsersFile)
	v.SetDefault(KeyCleanupDelay, d.CleanupDelay)
	v.SetDefault(KeyProgressInterval, d.ProgressInterval)
	v.SetDefault(KeyTokenTTL, d.TokenTTL)
	v.SetDefault(KeyListLimit, d.ListLimit)
	v.SetDefault(KeyHTTPAddr, d.HTTPAddr)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)
	v.SetDefault(KeyYtDlp, d.Tools.YtDlp)
	v.SetDefault(KeyFFmpeg, d.Tools.FFmpeg)
	v.SetDefault(KeyFFprobe, d.Tools.FFprobe)
	v.SetDefault(KeyConvert, d.Tools.Convert)
}

func fromViper(v *viper.Viper) domain.Settings {
	return domain.Settings{
		BotToken:         v.GetString(KeyBotToken),
		JWTSecret:        v.GetString(KeyJWTSecret),
		DataDir:          v.GetString(KeyDataDir),
		ChmodMode:        v.GetString(KeyChmod),
		TempDir:          v.GetString(KeyTempDir),
		UsersFile:        v.GetString(KeyUsersFile),
		CleanupDelay:     v.GetDuration(KeyCleanupDelay),
		ProgressInterval: v.GetDuration(KeyProgressInterval),
		TokenTTL:         v.GetDuration(KeyTokenTTL),
		ListLimit:        v.GetInt(KeyListLimit),
		HTTPAddr:         v.GetString(KeyHTTPAddr),
		LogLevel:         v.GetString(KeyLogLevel),
		LogFormat:        v.GetString(KeyLogFormat),
		Tools: domain.Tools{
			YtDlp:   v.GetString(KeyYtDlp),
			FFmpeg:  v.GetString(KeyFFmpeg),
			FFprobe: v.GetString(KeyFFprobe),
			Convert: v.GetString(KeyConvert),
		},
	}
}

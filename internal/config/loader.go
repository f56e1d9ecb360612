package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/kiln/pkg/lock"
	"github.com/3leaps/kiln/pkg/watch"
)

// Load resolves configuration in precedence order: defaults, then an
// optional kiln.yaml (current directory or the app config directory),
// then KILN_* environment variables.
func Load(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(AppName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/" + AppName)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")

	v.SetDefault("locks.dir", "")
	v.SetDefault("locks.stale_after", lock.DefaultStaleAfter)
	v.SetDefault("locks.poll_every", lock.DefaultPollEvery)
	v.SetDefault("locks.acquire_timeout", lock.DefaultAcquireTimeout)

	v.SetDefault("history.path", "")
	v.SetDefault("history.disabled", false)

	v.SetDefault("watch.debounce", watch.DefaultDebounce)
	v.SetDefault("watch.rebuild_interval", watch.DefaultRebuildInterval)
}

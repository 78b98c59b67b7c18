package runtime

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// LoadConfig reads connection settings from slate.toml (searched in the
// working directory and $HOME/.slate) merged with SLATE_* environment
// variables. An explicit path skips the search. A missing file is not an
// error; the defaults stand.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("slate")
	v.SetConfigType("toml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.slate")
	}

	v.SetEnvPrefix("SLATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()
	v.SetDefault("db.host", cfg.Host)
	v.SetDefault("db.port", cfg.Port)
	v.SetDefault("db.database", cfg.Database)
	v.SetDefault("db.user", cfg.User)
	v.SetDefault("db.password", cfg.Password)
	v.SetDefault("db.sslmode", cfg.SSLMode)
	v.SetDefault("db.max_conns", cfg.MaxConns)
	v.SetDefault("db.min_conns", cfg.MinConns)
	v.SetDefault("db.url", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	if err := v.UnmarshalKey("db", cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return cfg, nil
}

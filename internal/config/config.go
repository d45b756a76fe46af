package config

import (
	"errors"
	"io/fs"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jaam8/classpoll/pkg/tarantool"
	"github.com/joho/godotenv"
)

type Config struct {
	RestPort string `yaml:"REST_PORT" env:"REST_PORT" env-default:"8080"`
	LogLevel string `yaml:"LOG_LEVEL" env:"LOG_LEVEL" env-default:"debug"`
	// HistoryPersistence enables mirroring the poll history into
	// Tarantool. The service runs fully in-memory without it.
	HistoryPersistence bool             `yaml:"HISTORY_PERSISTENCE" env:"HISTORY_PERSISTENCE" env-default:"false"`
	Tarantool          tarantool.Config `yaml:"TARANTOOL" env:"TARANTOOL"`
}

func New() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "HABITWEEK_"

type Application struct {
	Server   Server   `koanf:"server"`
	Database Database `koanf:"db"`
	Redis    Redis    `koanf:"redis"`
	Insights Insights `koanf:"insights"`
	Amqp     Amqp     `koanf:"amqp"`
	Store    Store    `koanf:"store"`
}

type Server struct {
	Port int `koanf:"port"`
}

type Database struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Pass     string `koanf:"pass"`
	Name     string `koanf:"name"`
	Schema   string `koanf:"schema"`
	MaxConns int32  `koanf:"maxconns"`
	MinConns int32  `koanf:"minconns"`

	// ConnectTimeout bounds how long Open keeps pinging a database that is still starting.
	ConnectTimeout time.Duration `koanf:"connecttimeout"`
}

// Redis caching of weekly summaries is enabled when Host is not empty.
type Redis struct {
	Host string `koanf:"host"`
	Port string `koanf:"port"`
	Pass string `koanf:"pass"`
	DB   int    `koanf:"db"`
}

type Insights struct {
	Enabled bool          `koanf:"enabled"`
	BaseUrl string        `koanf:"baseurl"`
	ApiKey  string        `koanf:"apikey"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

// Amqp forwarding of domain events is enabled when Url is not empty.
type Amqp struct {
	Url      string `koanf:"url"`
	Exchange string `koanf:"exchange"`
}

type Store struct {
	RetryAttempts int           `koanf:"retryattempts"`
	RetryInterval time.Duration `koanf:"retryinterval"`
}

func defaults() Application {
	return Application{
		Server: Server{
			Port: 8181,
		},
		Database: Database{
			Host:   "localhost",
			Port:   5432,
			User:   "habitweek",
			Pass:   "",
			Name:   "habitweek",
			Schema: "habitweek",

			MaxConns:       25,
			MinConns:       2,
			ConnectTimeout: 30 * time.Second,
		},
		Redis: Redis{
			Port: "6379",
		},
		Insights: Insights{
			Enabled: false,
			BaseUrl: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
		},
		Amqp: Amqp{
			Exchange: "habitweek.events",
		},
		Store: Store{
			RetryAttempts: 3,
			RetryInterval: 100 * time.Millisecond,
		},
	}
}

func Load(path string) (Application, error) {
	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %v", err)
	}

	var k = koanf.New(".")

	err := k.Load(structs.Provider(defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, envPrefix)), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}

package main

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"

	"github.com/123123eeqweq/omocrm/authgate"
	"github.com/123123eeqweq/omocrm/domain"
)

type cliConfig struct {
	APIURL     string `env:"OMOCRM_API_URL" envDefault:"http://localhost:3001"`
	StatePath  string `env:"OMOCRM_STATE"`
	AuthPolicy string `env:"OMOCRM_AUTH_POLICY" envDefault:"server-session"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg cliConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if cfg.StatePath == "" {
		cfg.StatePath = authgate.DefaultStatePath()
	}
	policy, err := domain.ParseAuthPolicy(cfg.AuthPolicy)
	if err != nil {
		return err
	}

	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(log.WarnLevel)

	app := &App{
		APIURL:    cfg.APIURL,
		StatePath: cfg.StatePath,
		Policy:    policy,
		Logger:    logger,
		IsInteractive: func() bool {
			return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
		},
	}
	return NewRootCmd(app).Execute()
}

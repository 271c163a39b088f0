package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/abda11atar3k/leblebbot/internal/config"
	"github.com/abda11atar3k/leblebbot/internal/daemon"
	"github.com/abda11atar3k/leblebbot/internal/instance"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	configFlag := flag.String("config", "", "config file path (default ~/.lebleb/config.toml)")
	flag.Parse()

	instanceName := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(instanceName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = instance.ConfigPath()
	}
	cfg, err := config.Resolve(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Gateway.Instance == "" {
		cfg.Gateway.Instance = instanceName
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{InstanceName: instanceName, Config: cfg}),
	)

	app.Run()
}

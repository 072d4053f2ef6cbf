package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"wabridge/internal/config"
	"wabridge/internal/daemon"
)

func main() {
	configFlag := flag.String("config", "wabridge.toml", "path to the service configuration file")
	initFlag := flag.Bool("init", false, "write a starter configuration file and exit")
	flag.Parse()

	if *initFlag {
		if _, err := os.Stat(*configFlag); err == nil {
			fmt.Fprintf(os.Stderr, "error: %s already exists\n", *configFlag)
			os.Exit(1)
		}
		if err := config.Save(*configFlag, config.Starter()); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *configFlag)
		return
	}

	if _, err := os.Stat(*configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{ConfigPath: *configFlag}),
	)

	app.Run()
}

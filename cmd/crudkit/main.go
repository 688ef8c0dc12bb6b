// Command crudkit serves the CRUD API.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/you-humble/crudkit/internal/app"
)

const defaultConfigPath = "./configs/local.yaml"

func main() {
	flagSet := pflag.NewFlagSet("crudkit", pflag.ContinueOnError)
	cfgPath := flagSet.StringP("config", "c", defaultConfigPath, "path to the YAML config file (empty to use env only)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	a := app.New(ctx, *cfgPath)
	if err := a.Run(ctx); err != nil {
		log.Fatalln("crudkit:", err)
	}
}

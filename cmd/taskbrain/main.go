package main

import (
	"github.com/felixgeelhaar/taskbrain/adapter/cli"
	"github.com/felixgeelhaar/taskbrain/pkg/observability"
)

func main() {
	cli.SetLogger(observability.LoggerFromEnv())
	cli.Execute()
}

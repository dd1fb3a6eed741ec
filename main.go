package main

import (
	"context"
	"log/slog"
	"os"
)

var App *LsdApp

func main() {
	App = initApp()
	err := App.cliCmd.Run(context.Background(), os.Args)
	App.close()
	if err != nil {
		slog.Error("Error in execution:", "msg", err)
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/small-frappuccino/quickvids/pkg/app"
	"github.com/small-frappuccino/quickvids/pkg/log"
)

// main is the entry point of the QuickVids bot.
func main() {
	if err := app.Run(); err != nil {
		log.ErrorLoggerRaw().Error("Fatal", "err", err)
		os.Exit(1)
	}
}

// healscope はHealScope NGのバックエンド。
//
//	healscope [serve|worker|migrate|healthcheck]
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/healscope/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("healscope exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

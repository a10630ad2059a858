package main

import (
	"flag"

	"github.com/chatsync-dev/chatsync/internal/appdir"
	"github.com/chatsync-dev/chatsync/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	dataDir := flag.String("data-dir", "", "data directory (default ~/.chatsync)")
	flag.Parse()

	dir := *dataDir
	if dir == "" {
		dir = appdir.BaseDir()
	}

	app := fx.New(
		daemon.Module(daemon.Params{DataDir: dir}),
	)

	app.Run()
}

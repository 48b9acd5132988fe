package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/plp/edmodule/apps/shared"
	"github.com/plp/edmodule/core"
)

func main() {
	conf := core.NewConfig()
	logger := shared.NewLogger("WORKER", conf)

	db, err := shared.SetUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("Failed to close database", err)
		}
	}()

	shared.LoadAssets(conf, logger)
	svcs := shared.NewServices(db, conf, logger, shared.NewMailService(conf, logger))

	w := &worker{syncer: svcs.Syncer, logger: logger, timeout: conf.ProgressSync.Timeout}
	scheduler, err := w.schedule(conf.ProgressSync.Schedule)
	if err != nil {
		logger.Fatal(err.Error(), err)
	}

	logger.Info(fmt.Sprintf("Worker started : version %q : progress sync %q", conf.Build, conf.ProgressSync.Schedule))
	scheduler.Start()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

	// wait for a running sync to complete
	<-scheduler.Stop().Done()
	logger.Info("Worker stopped")
}

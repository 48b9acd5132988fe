package main

import (
	"fmt"
	"os"

	"github.com/plp/edmodule/apps/shared"
	"github.com/plp/edmodule/core"
)

func main() {
	conf := core.NewConfig()
	logger := shared.NewLogger("ADMIN", conf)

	db, err := shared.SetUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}

	shared.LoadAssets(conf, logger)
	svcs := shared.NewServices(db, conf, logger, shared.NewMailService(conf, logger))

	// start CLI
	cli := commandLine{
		db:       db.DB,
		usrSvc:   svcs.Users,
		modSvc:   svcs.Modules,
		promoSvc: svcs.Promos,
		syncer:   svcs.Syncer,
		out:      os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

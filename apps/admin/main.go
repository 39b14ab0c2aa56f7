package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/services/events"
	"github.com/trezcool/hazira/storage/database"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	var db *sql.DB
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	cli := commandLine{
		conf: conf,
		out:  os.Stdout,
		openDB: func() (*sql.DB, error) {
			if err := database.CreateIfNotExist(conf); err != nil {
				return nil, err
			}
			var err error
			db, err = database.Open(conf)
			return db, err
		},
		openSubscriber: func() (subscriber, error) {
			if conf.NATS.URL == "" {
				return nil, errors.New("no NATS URL configured")
			}
			return events.NewNATSSubscriber(conf.NATS.URL)
		},
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

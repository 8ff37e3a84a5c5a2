package main

import (
	"flag"
	"log"
	"os"

	"github.com/facturier/backoffice/controller"
	"github.com/facturier/backoffice/model"

	"github.com/pelletier/go-toml/v2"
)

func dothings() error {
	runMigrations := flag.Bool("migrate", false, "run pending schema migrations before serving")
	flag.Parse()

	data, err := os.ReadFile("config.toml")
	if err != nil {
		return err
	}
	cfg := &model.Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return err
	}
	if *runMigrations {
		if err := migrateUp(cfg); err != nil {
			return err
		}
	}
	db, err := model.InitDatabase(cfg)
	if err != nil {
		return err
	}
	return controller.NewController(db)
}

func main() {
	if err := dothings(); err != nil {
		log.Fatal(err)
	}
}

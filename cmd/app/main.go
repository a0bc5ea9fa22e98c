// entry point to app :)
package main

import (
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/linktracker/config"
	"github.com/ds124wfegd/linktracker/internal/appServer"
)

func main() {
	logrus.SetFormatter(new(logrus.JSONFormatter))

	viperInstance, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Cannot load config. Error: {%s}", err.Error())
	}

	cfg, err := config.ParseConfig(viperInstance)
	if err != nil {
		logrus.Fatalf("Cannot parse config. Error: {%s}", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid config. Error: {%s}", err.Error())
	}

	if err := appServer.NewServer(cfg); err != nil {
		logrus.Fatalf("Server stopped with error: %v", err)
	}
}

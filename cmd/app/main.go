package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"

	"github.com/hubertat/servicemaker"

	"github.com/hubertat/emskit"
)

var (
	Version string
	Build   string

	config      = flag.String("config", "config.json", "path of the configuration file")
	flagInstall = flag.Bool("install", false, "Install service in os")

	emsService = servicemaker.ServiceMaker{
		User:               "emskit",
		ServicePath:        "/etc/systemd/system/emskit.service",
		ServiceDescription: "EmsKit service: Homevolt EMS poller and HomeKit bridge. github.com/hubertat/emskit",
		ExecDir:            "/srv/emskit",
		ExecName:           "emskit",
	}
)

func main() {
	log.Printf("emskit %s started\n", Version)
	flag.Parse()

	if *flagInstall {
		err := emsService.InstallService()
		if err != nil {
			panic(err)
		} else {
			log.Println("service installed!")
			return
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kit := &emskit.EmsKit{}
	configFile, err := os.Open(*config)
	if err == nil {
		cBuff, err := io.ReadAll(configFile)
		if err != nil {
			log.Fatalf("failed reading config file: %v\n", err)
		}

		err = json.Unmarshal(cBuff, kit)
		if err != nil {
			log.Fatalf("failed unmarshalling json config: %v", err)
		}
	} else {
		log.Fatalf("can't find/open config file (%s), will terminate. Reason: \n%v\n", *config, err)
	}

	log.Println("will init emskit (first refresh)...")
	err = kit.Init(ctx)
	defer kit.Close()
	if err != nil {
		panic(err)
	}

	kit.PrintStatus(os.Stdout)

	if len(kit.MqttBroker) > 0 {
		err = kit.InitMqtt()
		if err != nil {
			log.Printf("mqtt init failed, continuing without it: %v\n", err)
		}
	}

	if len(kit.StatusAddr) > 0 {
		err = kit.StartStatusServer()
		if err != nil {
			log.Fatalf("failed to start status server: %v", err)
		}
		log.Printf("status api listening on %s\n", kit.StatusAddr)
	}

	if len(kit.HkPin) == 8 {
		log.Println("Starting with HomeKit server")

		go kit.StartTicker(ctx)
		log.Fatal(kit.StartHomeKit(ctx, Version))
	} else {
		log.Println("HomeKit not configured, disabled")
		kit.StartTicker(ctx)
	}
}

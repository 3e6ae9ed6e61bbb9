package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/testboard/pkg/coordinator/bridge"
	"github.com/robotalks/testboard/pkg/coordinator/gateway"
	"github.com/robotalks/testboard/pkg/coordinator/poller"
	"github.com/robotalks/testboard/pkg/coordinator/state"
	"github.com/robotalks/testboard/pkg/env"
	"github.com/robotalks/testboard/pkg/events"
	"github.com/robotalks/testboard/pkg/framework"
	"github.com/robotalks/testboard/pkg/link/endpoint"
	"github.com/robotalks/testboard/pkg/link/mqtt"
)

func init() {
	env.SetupCoordinatorFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := env.NewCoordinatorConfig()
	if err := conf.Validate(); err != nil {
		log.Fatalln(err)
	}

	runner := framework.NewRunner().HandleSignals()
	conn, err := endpoint.Dial(runner.Context, conf.Link, conf.Timeout)
	if err != nil {
		log.Fatalln(err)
	}
	defer conn.Close()

	b := bridge.New(conn)
	if err := b.Ping(runner.Context); err != nil {
		glog.Warningf("target not answering yet: %v", err)
	}

	store := state.NewStore()
	indicators := []poller.Indicator{poller.LogIndicator}
	if conf.MQTTURL != "" {
		opts, err := mqtt.OptionsFromURL(conf.MQTTURL)
		if err != nil {
			log.Fatalln(err)
		}
		q := mqtt.NewQueue(opts.Client, opts.TopicPrefix)
		if err := q.Connect(); err != nil {
			log.Fatalln(err)
		}
		defer q.Close()
		indicators = append(indicators, events.NewPublisher(q, conf.Board))
	}

	p := poller.New(b, store, indicators...)
	p.Interval = conf.PollInterval

	srv := gateway.New(b, store)
	srv.Listen = conf.Listen
	srv.ChunkSize = conf.ChunkSize
	srv.Refresher = p

	runner.Go(srv, p)
	glog.Infof("coordinator %s: link %s", conf.Board, conf.Link)
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}

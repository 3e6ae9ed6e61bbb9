package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/robotalks/testboard/pkg/events"
	"github.com/robotalks/testboard/pkg/link/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/testboard/"
	board   = "+"
)

func init() {
	if val := os.Getenv("TESTBOARD_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&board, "board", board, "Board ID to watch, + for all.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	opts, err := mqtt.OptionsFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	q := mqtt.NewQueue(opts.Client, opts.TopicPrefix)
	if err := q.Connect(); err != nil {
		log.Fatalln(err)
	}
	defer q.Close()

	q.Sub(mqtt.StatusTopic(board), func(topic string, payload []byte) {
		ev, err := events.Decode(payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		stamp := time.Unix(0, ev.Stamp*int64(time.Millisecond))
		log.Printf("%s: [%s] %s %d%% %s", ev.Board, stamp.Format(time.RFC3339), ev.StateName, ev.Progress, ev.Message)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh
}

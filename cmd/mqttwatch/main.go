package main

import (
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/paho"

	"github.com/hubertat/pinbox/mqtt"
)

const clientID = "mq-pinbox-watch"

var (
	broker = flag.String("broker", "mqtt://127.0.0.1:1883", "mqtt broker url")
	prefix = flag.String("prefix", "pinbox", "topic prefix, the pinbox name")
)

type Handler struct {
	topic string
}

func (h *Handler) MqttSubscribeTopic() string {
	return h.topic
}

func (h *Handler) MqttHandle(pub *paho.Publish) {
	log.Info("pin state", "topic", pub.Topic, "payload", string(pub.Payload))
}

func main() {
	flag.Parse()
	log.SetLevel(log.DebugLevel)

	mc, err := mqtt.NewMqttClient(*broker, clientID)
	if err != nil {
		log.Error("failed to create mqtt client", "error", err)
		return
	}

	mqttHandlers := []mqtt.MqttHandler{
		&Handler{topic: path.Join(*prefix, "pins", "+", "state")},
	}

	err = mc.Connect(mqttHandlers)
	if err != nil {
		log.Error("failed to connect to mqtt broker", "error", err)
		return
	}

	log.Info("mqtt client connected, watching", "prefix", *prefix)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

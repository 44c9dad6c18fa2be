// Copyright 2016 Michael Stapelberg and contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mayqtt implements an MQTT client which publishes status updates
// (registered references, saved analyses) to skinspec/ui/status.
//
// Publishing is best-effort: without a broker, or while disconnected,
// messages are dropped.
package mayqtt

import (
	"fmt"
	"log"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/net/trace"
)

const StatusTopic = "skinspec/ui/status"

type PublishRequest struct {
	Topic    string
	Qos      byte
	Retained bool
	Payload  interface{}
}

func mqttLoop(broker, clientID string, requests <-chan PublishRequest) error {
	tr := trace.New("MQTT", "Loop")
	defer tr.Finish()

	tr.LazyPrintf("Connecting to MQTT broker %s", broker)
	opts := mqtt.NewClientOptions().AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetConnectRetry(true)
	mqttClient := mqtt.NewClient(opts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connection failed: %v", token.Error())
	}
	tr.LazyPrintf("Connected to MQTT broker %s", broker)

	for r := range requests {
		tr.LazyPrintf("publishing on topic %s: %q", r.Topic, r.Payload)
		// discard Token, MQTT publishing is best-effort
		_ = mqttClient.Publish(r.Topic, r.Qos, r.Retained, r.Payload)
	}
	return nil
}

var (
	publishMu  sync.Mutex
	publish    chan PublishRequest
	lastStatus string
)

// MQTT starts publishing to broker (e.g. tcp://broker.lan:1883). Without a
// call to MQTT, Publishf is a no-op.
func MQTT(broker, clientID string) {
	requests := make(chan PublishRequest)
	publishMu.Lock()
	publish = requests
	publishMu.Unlock()
	go func() {
		if err := mqttLoop(broker, clientID, requests); err != nil {
			log.Print(err)
		}
	}()
}

func Publishf(format string, args ...interface{}) {
	status := fmt.Sprintf(format, args...)
	publishMu.Lock()
	defer publishMu.Unlock()
	// Prevent duplicate messages if status has not changed
	if lastStatus == status {
		return
	}
	lastStatus = status
	select {
	case publish <- PublishRequest{
		Topic:    StatusTopic,
		Retained: true,
		Payload:  []byte(status),
	}:
	default:
		// drop message if MQTT is not connected
	}
}

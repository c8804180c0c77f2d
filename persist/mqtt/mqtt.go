/* Copyright 2019-2024 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package mqtt is a persist.Sink that publishes Records to an MQTT
// broker.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Comcast/formflow/persist"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultTopic is the topic template for NewSink.
var DefaultTopic = "formflow/{form}/{session}/{status}"

// PublishTimeout occurs when the broker doesn't acknowledge a
// publication in time.
var PublishTimeout = errors.New("mqtt publish timeout")

// Sink publishes each Record as JSON.
//
// Topic is a template.  These placeholders are replaced:
//
//	{session}: the session id
//	{form}: the form id
//	{status}: in_progress or completed
//	{question}: the question id (empty for final Records)
type Sink struct {
	Topic    string
	QoS      byte
	Retained bool

	// Timeout is used when the context given to Save has no
	// deadline.
	Timeout time.Duration

	// Publish sends the payload.  NewSink sets it to publish with
	// a Paho client.
	Publish func(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
}

// Options are the connection options for Connect.
type Options struct {
	Broker    string        `json:"broker" yaml:"broker"`
	ClientId  string        `json:"clientId" yaml:"clientId"`
	Username  string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password  string        `json:"password,omitempty" yaml:"password,omitempty"`
	KeepAlive time.Duration `json:"keepAlive,omitempty" yaml:"keepAlive,omitempty"`
	Insecure  bool          `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	Reconnect bool          `json:"reconnect,omitempty" yaml:"reconnect,omitempty"`
}

// Connect makes a Paho client and connects it to the broker.
func Connect(opts *Options) (mqtt.Client, error) {
	mqtt.ERROR = log.New(os.Stderr, "mqtt.error ", 0)

	o := mqtt.NewClientOptions()
	o.AddBroker(opts.Broker)
	o.SetClientID(opts.ClientId)
	if 0 < opts.KeepAlive {
		o.SetKeepAlive(opts.KeepAlive)
	}
	o.Username = opts.Username
	o.Password = opts.Password
	o.AutoReconnect = opts.Reconnect
	o.CleanSession = true

	if strings.HasPrefix(opts.Broker, "ssl:") || strings.HasPrefix(opts.Broker, "tls:") {
		o.SetTLSConfig(&tls.Config{
			InsecureSkipVerify: opts.Insecure,
		})
	}

	o.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %s", err)
	}

	c := mqtt.NewClient(o)
	if t := c.Connect(); t.Wait() && t.Error() != nil {
		return nil, t.Error()
	}

	return c, nil
}

// NewSink makes a Sink that publishes with the given client using
// the DefaultTopic and QoS 1.
func NewSink(client mqtt.Client) *Sink {
	s := &Sink{
		Topic:   DefaultTopic,
		QoS:     1,
		Timeout: 10 * time.Second,
	}
	s.Publish = func(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
		t := client.Publish(topic, qos, retained, payload)
		wait := s.Timeout
		if deadline, ok := ctx.Deadline(); ok {
			wait = time.Until(deadline)
		}
		if !t.WaitTimeout(wait) {
			return PublishTimeout
		}
		return t.Error()
	}
	return s
}

// TopicFor fills in the Topic template for the Record.
func (s *Sink) TopicFor(r *persist.Record) string {
	return strings.NewReplacer(
		"{session}", r.SessionId,
		"{form}", r.FormId,
		"{status}", r.Status,
		"{question}", r.QuestionId,
	).Replace(s.Topic)
}

// Save implements persist.Sink.
func (s *Sink) Save(ctx context.Context, r *persist.Record) error {
	if s.Publish == nil {
		return errors.New("mqtt sink has no publisher")
	}
	js, err := json.Marshal(r)
	if err != nil {
		return err
	}
	topic := s.TopicFor(r)
	if err = s.Publish(ctx, topic, s.QoS, s.Retained, js); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

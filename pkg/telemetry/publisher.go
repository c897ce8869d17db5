// Package telemetry bridges motor feedback onto MQTT. Every decoded
// status frame is published as JSON under the configured topic prefix;
// faults additionally go to a dedicated error topic.
package telemetry

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// Sink accepts outbound telemetry messages.
type Sink interface {
	Pub(topic string, payload []byte)
}

// Publisher wraps an MQTT client with a topic prefix.
type Publisher struct {
	Client      paho.Client
	TopicPrefix string
}

// ClientOptionsFromURL creates ClientOptions from URL. The URL path, if
// any, becomes the topic prefix.
func ClientOptionsFromURL(serverURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, "", err
	}
	var server string
	if u.Scheme == "" || u.Scheme == "mqtt" {
		server = "tcp"
	} else {
		server = u.Scheme
	}
	server += "://" + u.Host

	topicPrefix := strings.TrimPrefix(u.Path, "/")

	opts := paho.NewClientOptions()
	opts.AddBroker(server).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}

	if clientID := u.Query().Get("client-id"); clientID != "" {
		opts.SetClientID(clientID)
	} else {
		opts.SetClientID(defaultClientID())
	}

	return opts, topicPrefix, nil
}

// defaultClientID derives a stable client identity from the machine ID
// so reconnects from the same host replace the old session.
func defaultClientID() string {
	id, err := machineid.ProtectedID("encos")
	if err != nil {
		host, _ := os.Hostname()
		return fmt.Sprintf("encos-%s-%d", host, os.Getpid())
	}
	return "encos-" + id
}

// NewPublisher creates a Publisher for the broker URL. A topic prefix
// in the URL path wins over topicPrefix.
func NewPublisher(brokerURL, topicPrefix string) (*Publisher, error) {
	opts, urlPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if urlPrefix != "" {
		topicPrefix = urlPrefix
	}
	return &Publisher{
		Client:      paho.NewClient(opts),
		TopicPrefix: topicPrefix,
	}, nil
}

// Connect connects the client and waits for the handshake.
func (p *Publisher) Connect() error {
	token := p.Client.Connect()
	token.Wait()
	return token.Error()
}

// Close implements io.Closer.
func (p *Publisher) Close() error {
	p.Client.Disconnect(0)
	return nil
}

// Pub publishes at QoS 0 under the topic prefix. Delivery failures are
// logged, never surfaced: telemetry is best effort and must not stall
// motor control.
func (p *Publisher) Pub(topic string, payload []byte) {
	full := topic
	if p.TopicPrefix != "" {
		full = p.TopicPrefix + "/" + topic
	}
	token := p.Client.Publish(full, 0, false, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			glog.Warningf("publish %q: %v", full, err)
		}
	}()
}

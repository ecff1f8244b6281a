// Package publish pushes live captions to an MQTT broker so other tools on
// the network can display them in real time.
package publish

import (
	"encoding/json"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/oxlade/meetscribe/internal/caption"
)

// publishTimeout bounds the wait on a single broker ack; a stalled broker
// must not back up the caption pipeline.
const publishTimeout = 5 * time.Second

// Options configures the caption publisher.
type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Log         zerolog.Logger
}

// captionMessage is the published payload shape.
type captionMessage struct {
	Index   int       `json:"index"`
	Segment string    `json:"segment"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Publisher is a caption sink backed by an MQTT connection. Captions go to
// <prefix>/captions; session lifecycle notices go to <prefix>/session.
type Publisher struct {
	conn      mqtt.Client
	topic     string
	connected atomic.Bool
	log       zerolog.Logger
}

// Connect dials the broker and returns a publisher. Reconnection after a
// drop is automatic; captions emitted while disconnected are dropped with a
// warning rather than queued.
func Connect(opts Options) (*Publisher, error) {
	p := &Publisher{
		topic: opts.TopicPrefix + "/captions",
		log:   opts.Log.With().Str("component", "mqtt-publish").Logger(),
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	p.conn = mqtt.NewClient(clientOpts)
	token := p.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	return p, nil
}

// Emit publishes one caption. Empty captions are skipped; subscribers only
// care about text.
func (p *Publisher) Emit(c caption.Caption) {
	if c.Text == "" {
		return
	}
	if !p.connected.Load() {
		p.log.Warn().Int("index", c.Index).Msg("not connected, caption dropped")
		return
	}
	payload, err := json.Marshal(captionMessage{
		Index:   c.Index,
		Segment: c.Segment,
		Text:    c.Text,
		At:      c.At,
	})
	if err != nil {
		return
	}
	token := p.conn.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.log.Warn().Int("index", c.Index).Msg("publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		p.log.Warn().Err(err).Int("index", c.Index).Msg("publish failed")
	}
}

// Flush is a no-op; QoS 0 publishes have nothing buffered.
func (p *Publisher) Flush() {}

func (p *Publisher) onConnect(_ mqtt.Client) {
	p.connected.Store(true)
	p.log.Info().Str("topic", p.topic).Msg("mqtt connected")
}

func (p *Publisher) onConnectionLost(_ mqtt.Client, err error) {
	p.connected.Store(false)
	p.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

// IsConnected reports the current broker connection state.
func (p *Publisher) IsConnected() bool {
	return p.connected.Load()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.log.Info().Msg("disconnecting mqtt publisher")
	p.conn.Disconnect(1000)
}

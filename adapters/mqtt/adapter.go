package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/moosethebrown/drone-ws-bridge/core"
	"github.com/moosethebrown/drone-ws-bridge/metrics"
	"github.com/rs/zerolog"
)

const (
	announceQos = 2
	eventQos    = 1
)

// Adapter publishes bridge telemetry: a retained presence announce and one
// audit event per handled command. It never accepts commands.
type Adapter struct {
	broker            string
	connTimeout       time.Duration
	username          string
	passwd            string
	droneId           string
	announceTopic     string
	announceTimeout   time.Duration
	disconnectTimeout time.Duration
	eventTopic        string
	certCheck         bool
	client            mqtt.Client
	newClient         func(*mqtt.ClientOptions) mqtt.Client
	stopChan          chan bool
	announceChan      chan bool
	eventChan         chan *core.Event
	running           atomic.Bool
	logger            *zerolog.Logger
}

func NewAdapter(broker string, connTimeout time.Duration, username string,
	passwd string, droneId string, announceTopic string,
	announceTimeout time.Duration,
	disconnectTimeout time.Duration,
	certCheck bool, queueSize int,
	logger *zerolog.Logger) *Adapter {

	return &Adapter{
		broker:            broker,
		connTimeout:       connTimeout,
		username:          username,
		passwd:            passwd,
		droneId:           droneId,
		announceTopic:     announceTopic,
		announceTimeout:   announceTimeout,
		disconnectTimeout: disconnectTimeout,
		eventTopic:        fmt.Sprintf("drone/%s/commands", droneId),
		certCheck:         certCheck,
		newClient:         mqtt.NewClient,
		stopChan:          make(chan bool, 1),
		announceChan:      make(chan bool, 1),
		eventChan:         make(chan *core.Event, queueSize),
		logger:            logger,
	}
}

func (a *Adapter) Run() error {
	a.logger.Info().Msg("starting")
	defer a.logger.Info().Msg("stopping")

	err := a.connect()
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to connect to MQTT broker")
		return err
	}

	defer a.client.Disconnect(uint(a.disconnectTimeout.Milliseconds()))

	a.running.Store(true)
	defer a.running.Store(false)

main_loop:
	for {
		select {
		case <-a.stopChan:
			break main_loop
		case <-a.announceChan:
			a.announce()
		case ev := <-a.eventChan:
			a.publishEvent(ev)
		}
	}

	return nil
}

func (a *Adapter) Stop() {
	select {
	case a.stopChan <- true:
	default:
	}
}

// Announce requests a presence publish. A request already pending absorbs
// this one. Requests made while the adapter is not connected are discarded.
func (a *Adapter) Announce() {
	if !a.running.Load() {
		return
	}
	select {
	case a.announceChan <- true:
	default:
	}
}

// PublishEvent queues ev for publishing, dropping it if the queue is full.
// Events arriving while the adapter is not connected are discarded silently.
func (a *Adapter) PublishEvent(ev *core.Event) {
	if !a.running.Load() {
		return
	}
	select {
	case a.eventChan <- ev:
	default:
		metrics.EventsDropped.Inc()
		a.logger.Warn().Str("session", ev.Session).Msg("event queue full, dropping event")
	}
}

func (a *Adapter) announce() {
	a.logger.Debug().Msg("announce")

	// retained so that operator software starting later still sees the drone
	token := a.client.Publish(a.announceTopic, announceQos, true, a.droneId)
	if !token.WaitTimeout(a.announceTimeout) {
		a.logger.Error().Msg("timeout expired while publishing announce message")
		metrics.AnnounceFailures.Inc()
	} else if err := token.Error(); err != nil {
		a.logger.Error().Err(err).Msg("error publishing announce message")
		metrics.AnnounceFailures.Inc()
	}
}

func (a *Adapter) publishEvent(ev *core.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to marshal event")
		return
	}
	a.client.Publish(a.eventTopic, eventQos, false, payload)
}

func (a *Adapter) connect() error {
	opts := mqtt.NewClientOptions().AddBroker(a.broker).SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetCredentialsProvider(func() (username string, password string) {
		return a.username, a.passwd
	})
	opts.SetClientID("drone-ws-bridge-" + a.droneId)
	tlsConfig := &tls.Config{
		InsecureSkipVerify: !a.certCheck,
	}
	opts.SetTLSConfig(tlsConfig)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		a.logger.Info().Str("broker", a.broker).Msg("connected to broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		a.logger.Warn().Err(err).Msg("connection to broker lost")
	})

	a.client = a.newClient(opts)
	token := a.client.Connect()

	if !token.WaitTimeout(a.connTimeout) {
		return errors.New("failed to connect to broker")
	}

	err := token.Error()
	return err
}

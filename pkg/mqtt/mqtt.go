// Package mqtt publishes measurements to a mqtt broker.
package mqtt

import (
	"fmt"
	"os"
	"sync"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/womat/debug"
)

const (
	// quiesce is the specified number of milliseconds to wait for existing work to be completed.
	quiesce = 250
	// connectTimeout bounds the initial connect to the broker.
	connectTimeout = 5 * time.Second
)

// Handler contains the handler of the mqtt broker.
type Handler struct {
	handler mqttlib.Client
	// C is the channel to service the mqtt message
	// sending a message to channel C will send the message.
	C    chan Message
	once sync.Once
	done chan struct{}
}

// Message contains the properties of the mqtt message.
type Message struct {
	Topic    string
	Payload  []byte
	Qos      byte
	Retained bool
}

// New generate a new mqtt broker client.
func New() *Handler {
	return &Handler{
		C:    make(chan Message, 16),
		done: make(chan struct{}),
	}
}

// Connect connects to the mqtt broker, e.g. tcp://127.0.0.1:1883.
// If no broker is defined, no mqtt message are send.
func (m *Handler) Connect(broker, clientID string) error {
	if broker == "" {
		return nil
	}

	if clientID == "" {
		host, _ := os.Hostname()
		clientID = fmt.Sprintf("dypmon-%s-%d", host, os.Getpid())
	}

	opts := mqttlib.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)
	m.handler = mqttlib.NewClient(opts)
	return m.ReConnect()
}

// ReConnect reconnects to the defined mqtt broker.
func (m *Handler) ReConnect() error {
	t := m.handler.Connect()
	if !t.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connect to mqtt broker: timeout after %v", connectTimeout)
	}
	return t.Error()
}

// Connected reports whether a broker is configured and connected.
func (m *Handler) Connected() bool {
	return m.handler != nil && m.handler.IsConnected()
}

// Disconnect stops the service and ends the connection to the broker.
func (m *Handler) Disconnect() error {
	m.once.Do(func() { close(m.done) })

	if m.handler == nil {
		return nil
	}

	m.handler.Disconnect(quiesce)
	return nil
}

// Publish queues a message, it never blocks. If the queue is full, the message is dropped.
func (m *Handler) Publish(msg Message) {
	select {
	case <-m.done:
	case m.C <- msg:
	default:
		debug.ErrorLog.Printf("mqtt queue is full, drop message for topic %v", msg.Topic)
	}
}

// Service listen to a message on the channel C and send the message to mqtt
// until Disconnect is called. If no handler or topic is defined, the message will be ignored.
func (m *Handler) Service() {
	for {
		select {
		case <-m.done:
			return
		case msg := <-m.C:
			m.send(msg)
		}
	}
}

func (m *Handler) send(msg Message) {
	if m.handler == nil || msg.Topic == "" {
		return
	}

	if !m.handler.IsConnected() {
		debug.DebugLog.Printf("mqtt broker isn't connected, reconnect it")

		if err := m.ReConnect(); err != nil {
			debug.ErrorLog.Printf("can't reconnect to mqtt broker %v", err)
			return
		}
	}

	debug.DebugLog.Printf("publishing %v bytes to topic %v", len(msg.Payload), msg.Topic)
	t := m.handler.Publish(msg.Topic, msg.Qos, msg.Retained, msg.Payload)

	// the asynchronous nature of this library makes it easy to forget to check for errors.
	go func() {
		t.Wait()
		if err := t.Error(); err != nil {
			debug.ErrorLog.Printf("publishing topic %v: %v", msg.Topic, err)
		}
	}()
}

package mqttclient

import (
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"housekeyper-backend/config"
)

// MessageHandler receives one delivered message. Handlers run on paho's
// single callback routine, one message at a time.
type MessageHandler func(topic string, payload []byte)

// Client wraps the paho MQTT client with the subscription bookkeeping the
// daemon needs: handlers registered through Subscribe are re-established
// automatically whenever the connection comes back.
type Client struct {
	inner mqtt.Client

	mu       sync.Mutex
	handlers map[string]MessageHandler
}

// New builds a client for the configured broker. The connection is not opened
// until Connect is called.
func New(cfg *config.BrokerConfig) *Client {
	c := &Client{handlers: make(map[string]MessageHandler)}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	// Unique client id so that multiple installations on one broker don't
	// kick each other off.
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.ClientIDPrefix, uuid.New().String()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("[MQTT] connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Println("[MQTT] connected")
		if err := c.resubscribe(); err != nil {
			log.Printf("[MQTT] resubscribe failed: %v", err)
		}
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Println("[MQTT] reconnecting...")
	})

	c.inner = mqtt.NewClient(opts)
	return c
}

// Connect opens the broker connection and blocks until it is established or
// fails.
func (c *Client) Connect() error {
	token := c.inner.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect failed: %w", err)
	}
	return nil
}

// Subscribe registers a handler for a topic filter. The subscription survives
// reconnects.
func (c *Client) Subscribe(filter string, handler MessageHandler) error {
	c.mu.Lock()
	c.handlers[filter] = handler
	c.mu.Unlock()
	return c.subscribe(filter, handler)
}

func (c *Client) subscribe(filter string, handler MessageHandler) error {
	token := c.inner.Subscribe(filter, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s failed: %w", filter, err)
	}
	log.Printf("[MQTT] subscribed to %s", filter)
	return nil
}

func (c *Client) resubscribe() error {
	c.mu.Lock()
	handlers := make(map[string]MessageHandler, len(c.handlers))
	for k, v := range c.handlers {
		handlers[k] = v
	}
	c.mu.Unlock()

	for filter, handler := range handlers {
		if err := c.subscribe(filter, handler); err != nil {
			return err
		}
	}
	return nil
}

// Publish sends a message with QoS 0, fire-and-forget.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.inner.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}
	return nil
}

// Disconnect closes the connection, allowing a short quiesce for in-flight
// messages.
func (c *Client) Disconnect() {
	c.inner.Disconnect(250)
}

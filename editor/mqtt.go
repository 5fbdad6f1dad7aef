package editor

import (
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultTopicPrefix is the root of the real-time topic tree.
const DefaultTopicPrefix = "floorplan"

// PatchTopic is the topic carrying patches for one floor plan.
func PatchTopic(prefix, planID string) string {
	return fmt.Sprintf("%s/floor-plans/%s/patches", prefix, planID)
}

// PatchHandler receives raw patch payloads. Reconciler.HandleMessage
// satisfies it.
type PatchHandler func(payload []byte) error

// RealtimeClient subscribes to the patch topic of the open floor plan.
type RealtimeClient struct {
	client      mqtt.Client
	config      MQTTConfig
	planID      string
	handler     PatchHandler
	isConnected bool
	mu          sync.RWMutex
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewRealtimeClient builds a client for cfg. When no broker is configured
// real-time updates are disabled and it returns nil, nil.
func NewRealtimeClient(cfg MQTTConfig, planID string, handler PatchHandler) (*RealtimeClient, error) {
	if cfg.Broker == "" {
		log.Println("[MQTT] Real-time updates disabled: no broker configured")
		return nil, nil
	}
	if planID == "" {
		return nil, fmt.Errorf("realtime: floor plan id is required")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}

	c := &RealtimeClient{
		config:  cfg,
		planID:  planID,
		handler: handler,
		stop:    make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	opts.SetOrderMatters(true) // patches are last-write-wins

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// NewRealtimeClientWithClient wires an existing mqtt.Client, such as
// MockClient. Clients that accept an on-connect handler get the
// subscription hook.
func NewRealtimeClientWithClient(client mqtt.Client, cfg MQTTConfig, planID string, handler PatchHandler) *RealtimeClient {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	c := &RealtimeClient{
		client:  client,
		config:  cfg,
		planID:  planID,
		handler: handler,
		stop:    make(chan struct{}),
	}
	if h, ok := client.(interface {
		SetOnConnectHandler(mqtt.OnConnectHandler)
	}); ok {
		h.SetOnConnectHandler(c.onConnect)
	}
	return c
}

// Start connects in the background, retrying until connected or stopped.
func (c *RealtimeClient) Start() {
	go c.connectWithRetry()
}

// Topic returns the subscribed patch topic.
func (c *RealtimeClient) Topic() string {
	return PatchTopic(c.config.TopicPrefix, c.planID)
}

// Client returns the underlying MQTT client, shared with the publisher.
func (c *RealtimeClient) Client() mqtt.Client {
	return c.client
}

func (c *RealtimeClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Printf("[MQTT] Connecting to %s...", c.config.Broker)

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] Connected")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] Connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] Connection timeout")
		}

		log.Printf("[MQTT] Retrying connection in %v...", retryDelay)
		select {
		case <-c.stop:
			return
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

func (c *RealtimeClient) onConnect(client mqtt.Client) {
	c.setConnected(true)
	topic := c.Topic()
	log.Printf("[MQTT] Subscribing to %s", topic)

	token := client.Subscribe(topic, 1, c.createMessageHandler())
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
	}
}

func (c *RealtimeClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] Connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *RealtimeClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] Reconnecting...")
}

func (c *RealtimeClient) createMessageHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		if c.handler == nil {
			return
		}
		if err := c.handler(msg.Payload()); err != nil {
			log.Printf("[REALTIME] Dropping patch on %s (%d bytes): %v", msg.Topic(), len(msg.Payload()), err)
		}
	}
}

func (c *RealtimeClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *RealtimeClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect stops connection attempts and closes the connection.
func (c *RealtimeClient) Disconnect() {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] Disconnecting...")
		c.client.Unsubscribe(c.Topic())
		c.client.Disconnect(250)
	}
	c.setConnected(false)
}

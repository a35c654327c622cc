package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ckauhaus/esera-mqtt/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang with session status handling.
//
// It provides connection management, message publishing, subscription handling,
// and automatic reconnection with exponential backoff.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	will    Will

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// conn is the live broker socket. Close drops it without sending
	// DISCONNECT so the broker publishes the will.
	conn    net.Conn
	closing bool
	sockMu  sync.Mutex

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Will describes the session status topic. Online is published retained on
// every successful connect; Offline is registered as the last will, so the
// broker publishes it when the session ends without a clean DISCONNECT.
type Will struct {
	Topic   string
	Online  string
	Offline string
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked by the paho library's router. They should hand the
// message off and return quickly.
type MessageHandler func(topic string, payload []byte) error

// Connect establishes a session with the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures the last will from will (if will.Topic is set)
//  3. Sets up auto-reconnect with exponential backoff
//  4. Attempts the initial connection
//
// With cfg.Reconnect.ConnectRetry the initial connection is retried in the
// background and Connect returns immediately. Otherwise a broker that
// cannot be reached within the connect timeout fails with ErrConnectionFailed.
func Connect(cfg config.MQTTConfig, will Will) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		will:          will,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	opts.SetCustomOpenConnectionFn(c.openConnection)
	configureLWT(opts, will)
	c.options = opts

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Info("MQTT reconnecting", "broker", brokerURL(cfg))
		}
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if cfg.Reconnect.ConnectRetry {
		return c, nil
	}

	if !token.WaitTimeout(defaultConnectTimeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have executed
	// yet, so IsConnected must already report true here.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

// openConnection dials the broker and remembers the socket so Close can
// drop it. Once Close has started no new sockets are opened.
func (c *Client) openConnection(uri *url.URL, options pahomqtt.ClientOptions) (net.Conn, error) {
	c.sockMu.Lock()
	closing := c.closing
	c.sockMu.Unlock()
	if closing {
		return nil, ErrClosed
	}

	dialer := &net.Dialer{Timeout: options.ConnectTimeout, KeepAlive: defaultKeepAlive}

	var (
		conn net.Conn
		err  error
	)
	switch uri.Scheme {
	case "ssl", "tls", "tcps", "mqtts":
		conn, err = tls.DialWithDialer(dialer, "tcp", uri.Host, options.TLSConfig)
	default:
		conn, err = dialer.Dial("tcp", uri.Host)
	}
	if err != nil {
		return nil, err
	}

	c.sockMu.Lock()
	defer c.sockMu.Unlock()
	if c.closing {
		conn.Close()
		return nil, ErrClosed
	}
	c.conn = conn
	return conn, nil
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.restoreSubscriptions()
	c.publishOnlineStatus()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		// Errors surface as missing messages; the next reconnect retries.
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// publishOnlineStatus publishes the retained online payload to the will topic.
func (c *Client) publishOnlineStatus() {
	if c.will.Topic == "" {
		return
	}
	c.client.Publish(c.will.Topic, willQoS, true, c.will.Online)
}

// Close ends the session without a clean DISCONNECT.
//
// The broker socket is closed first, so the broker treats the session as
// lost and publishes the will (offline). No explicit offline message is
// sent; the status topic stays eventually consistent even when the
// process is killed.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.sockMu.Lock()
	c.closing = true
	conn := c.conn
	c.conn = nil
	c.sockMu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	// Stops paho's reconnect loop; the DISCONNECT packet cannot reach the
	// broker over the closed socket.
	c.client.Disconnect(0)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered",
					"topic", topic,
					"panic", r,
				)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT handler returned error",
				"topic", topic,
				"error", err,
			)
		}
	}
}

package esera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"go.bug.st/serial"

	"github.com/ckauhaus/esera-mqtt/internal/infrastructure/config"
	"github.com/ckauhaus/esera-mqtt/internal/protocol"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and sizes for the controller link.
const (
	// defaultPort is the controller's TCP port when the address has none.
	defaultPort = "5000"

	// defaultWriteTimeout bounds a single command write.
	defaultWriteTimeout = 5 * time.Second

	// tcpKeepAlive is the keep-alive period of TCP links.
	tcpKeepAlive = 30 * time.Second

	// recordQueueSize is the buffer size of the record callback queue.
	recordQueueSize = 256

	// breakerFailures is the number of consecutive write failures that
	// open the write circuit breaker.
	breakerFailures = 3

	// breakerTimeout is how long the breaker stays open before letting a
	// probe write through.
	breakerTimeout = 30 * time.Second
)

// linkController is the metrics label of the controller link.
const linkController = "controller"

// LinkState is the connection state of the controller link.
type LinkState int32

// Link states. A link cycles Disconnected → Connecting → Connected and
// falls back to Disconnected on any I/O failure.
const (
	StateDisconnected LinkState = iota
	StateConnecting
	StateConnected
)

func (s LinkState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ControllerStats holds operational statistics of the controller link.
type ControllerStats struct {
	RecordsRx       uint64
	RecordsDropped  uint64 // records dropped due to a full callback queue
	ParseErrors     uint64
	CommandsTx      uint64
	CommandsFailed  uint64
	ReconnectsTotal uint64
	LastActivity    time.Time
	Connected       bool
	State           string
	Breaker         string
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Metrics receives the bridge's operational counters.
// *metrics.Registry satisfies it.
type Metrics interface {
	IncRecords(recordType string)
	IncParseErrors()
	IncControllerErrors()
	IncReadingsPublished()
	IncPublishFailures()
	IncCommandsSent()
	IncCommandsRejected(reason string)
	IncQueueDrops(queue string)
	IncReconnects(link string)
	SetConnected(link string, up bool)
	SetDevices(n int)
}

type noopMetrics struct{}

func (noopMetrics) IncRecords(string)          {}
func (noopMetrics) IncParseErrors()            {}
func (noopMetrics) IncControllerErrors()       {}
func (noopMetrics) IncReadingsPublished()      {}
func (noopMetrics) IncPublishFailures()        {}
func (noopMetrics) IncCommandsSent()           {}
func (noopMetrics) IncCommandsRejected(string) {}
func (noopMetrics) IncQueueDrops(string)       {}
func (noopMetrics) IncReconnects(string)       {}
func (noopMetrics) SetConnected(string, bool)  {}
func (noopMetrics) SetDevices(int)             {}

// Connector is the controller link as seen by the bridge.
// This allows mocking the controller in tests.
type Connector interface {
	Send(ctx context.Context, cmd protocol.Command) error
	SetOnRecord(callback func(protocol.Record))
	IsConnected() bool
	Stats() ControllerStats
}

// Ensure ControllerClient implements Connector.
var _ Connector = (*ControllerClient)(nil)

// dialFunc opens one controller link.
type dialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// ControllerClient owns the link to one ESERA controller.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Record callbacks run on a single worker goroutine in arrival order.
//
// Auto-Reconnection:
//   - Connecting never fails permanently: dial errors and dropped links
//     are retried after a Backoff delay, reset on every successful connect.
//   - After each connect the init sequence is written (DATAPRINT, clock,
//     data interval, info and device list queries).
//   - Reconnection stops only when Close() is called or the Start
//     context is cancelled.
type ControllerClient struct {
	cfg     config.ControllerConfig
	address string
	dial    dialFunc
	backoff *Backoff
	now     func() time.Time

	// Connection state
	connMu    sync.RWMutex
	conn      io.ReadWriteCloser
	connected bool
	breaker   *gobreaker.CircuitBreaker // replaced on every attach
	state     atomic.Int32
	writeMu   sync.Mutex

	// Record handler callback
	onRecord   func(protocol.Record)
	onConnect  func()
	callbackMu sync.RWMutex

	records  chan protocol.Record
	commands chan protocol.Command

	// Shutdown coordination
	done      *closeOnce
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once

	// Logger and metrics (optional)
	logger   Logger
	metrics  Metrics
	loggerMu sync.RWMutex

	// Statistics
	recordsRx       atomic.Uint64
	recordsDropped  atomic.Uint64
	parseErrors     atomic.Uint64
	commandsTx      atomic.Uint64
	commandsFailed  atomic.Uint64
	reconnectsTotal atomic.Uint64
	everConnected   atomic.Bool
	lastActivity    atomic.Int64
}

// NewController creates a controller client for cfg without connecting.
// Call Start to begin the connect loop.
//
// Returns ErrInvalidAddress if cfg.Address cannot be dialled.
func NewController(cfg config.ControllerConfig) (*ControllerClient, error) {
	network, address, err := parseControllerAddress(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	var dial dialFunc
	switch network {
	case "serial":
		dial = serialDialer(address, cfg.BaudRate)
	default:
		dial = tcpDialer(address, cfg.ConnectTimeout, cfg.IdleTimeout)
	}

	queueSize := cfg.CommandQueueSize
	if queueSize < 1 {
		queueSize = 1
	}

	c := &ControllerClient{
		cfg:      cfg,
		address:  network + "://" + address,
		dial:     dial,
		backoff:  NewBackoff(cfg.Reconnect.InitialDelay, cfg.Reconnect.MaxDelay),
		now:      time.Now,
		records:  make(chan protocol.Record, recordQueueSize),
		commands: make(chan protocol.Command, queueSize),
		done:     newCloseOnce(),
		metrics:  noopMetrics{},
	}
	c.breaker = c.newBreaker()
	return c, nil
}

// newBreaker builds the write circuit breaker of one link. Each attached
// link gets a fresh, closed breaker.
func (c *ControllerClient) newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "controller-write",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logWarn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// parseControllerAddress splits a controller address into network and
// dial address.
//
// Supported formats:
//   - "tcp://192.168.1.10:5000"
//   - "192.168.1.10" or "esera.local:5001" (TCP, port 5000 by default)
//   - "serial:///dev/ttyUSB0"
func parseControllerAddress(addr string) (network, address string, err error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", "", errors.New("empty address")
	}

	if !strings.Contains(addr, "://") {
		return "tcp", withDefaultPort(addr), nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "tcp":
		if u.Hostname() == "" {
			return "", "", fmt.Errorf("missing host in %q", addr)
		}
		return "tcp", withDefaultPort(u.Host), nil
	case "serial":
		if u.Path == "" {
			return "", "", fmt.Errorf("missing device path in %q", addr)
		}
		return "serial", u.Path, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use tcp or serial)", u.Scheme)
	}
}

func withDefaultPort(hostport string) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	return net.JoinHostPort(strings.Trim(hostport, "[]"), defaultPort)
}

// tcpDialer dials a TCP controller. Reads on the returned link fail once
// nothing arrived for idle.
func tcpDialer(address string, timeout, idle time.Duration) dialFunc {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		dialer := net.Dialer{Timeout: timeout, KeepAlive: tcpKeepAlive}
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, err
		}
		if idle > 0 {
			return &idleConn{Conn: conn, idle: idle}, nil
		}
		return conn, nil
	}
}

// serialDialer opens a serial controller at 8N1.
func serialDialer(path string, baud int) dialFunc {
	return func(_ context.Context) (io.ReadWriteCloser, error) {
		mode := &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(path, mode)
		if err != nil {
			return nil, err
		}
		return port, nil
	}
}

// idleConn extends the read deadline before every read.
type idleConn struct {
	net.Conn
	idle time.Duration
}

func (c *idleConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.idle)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

// Start launches the connect loop, the record worker and the command
// writer. It returns immediately; connection failures are retried in the
// background until ctx is cancelled or Close is called.
func (c *ControllerClient) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		c.connMu.Lock()
		c.cancel = cancel
		c.connMu.Unlock()

		c.wg.Add(3)
		go c.runLoop(ctx)
		go c.recordWorker()
		go c.writeLoop()
	})
}

// runLoop drives the link state machine.
func (c *ControllerClient) runLoop(ctx context.Context) {
	defer c.wg.Done()

	for !c.isClosed() && ctx.Err() == nil {
		c.setState(StateConnecting)
		conn, err := c.connect(ctx)
		if err != nil {
			c.setState(StateDisconnected)
			delay := c.backoff.Next()
			c.logWarn("controller connect failed", "address", c.address, "error", err, "retry_in", delay.String())
			if !c.wait(ctx, delay) {
				return
			}
			continue
		}

		c.backoff.Reset()
		if !c.attach(conn) {
			return
		}
		c.notifyConnect()

		err = c.readLoop(conn)
		c.detach(conn)
		if c.isClosed() || ctx.Err() != nil {
			return
		}

		delay := c.backoff.Next()
		c.logWarn("controller link lost", "address", c.address, "error", err, "retry_in", delay.String())
		if !c.wait(ctx, delay) {
			return
		}
	}
}

// connect dials and sends the init sequence on the fresh link.
func (c *ControllerClient) connect(ctx context.Context) (io.ReadWriteCloser, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout())
	defer cancel()

	conn, err := c.dial(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	for _, cmd := range protocol.InitSequence(c.now(), c.cfg.DataInterval) {
		if err := c.writeTo(conn, cmd); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: init sequence: %w", ErrConnectionFailed, err)
		}
	}
	return conn, nil
}

func (c *ControllerClient) connectTimeout() time.Duration {
	if c.cfg.ConnectTimeout > 0 {
		return c.cfg.ConnectTimeout
	}
	return 10 * time.Second
}

// wait sleeps for d unless shutdown is signalled first.
func (c *ControllerClient) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.done.Done():
		return false
	case <-timer.C:
		return true
	}
}

// attach publishes conn as the current link. It returns false and closes
// conn if the client was closed meanwhile.
func (c *ControllerClient) attach(conn io.ReadWriteCloser) bool {
	c.connMu.Lock()
	if c.isClosed() {
		c.connMu.Unlock()
		conn.Close()
		return false
	}
	c.conn = conn
	c.connected = true
	c.breaker = c.newBreaker()
	c.connMu.Unlock()

	c.setState(StateConnected)
	c.lastActivity.Store(c.now().Unix())
	c.metrics.SetConnected(linkController, true)

	if c.everConnected.Swap(true) {
		c.reconnectsTotal.Add(1)
		c.metrics.IncReconnects(linkController)
		c.logInfo("controller reconnected", "address", c.address, "total_reconnects", c.reconnectsTotal.Load())
		return true
	}
	c.logInfo("controller connected", "address", c.address)
	return true
}

// detach drops conn if it is still the current link.
func (c *ControllerClient) detach(conn io.ReadWriteCloser) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.connected = false
	}
	c.connMu.Unlock()
	conn.Close()

	c.setState(StateDisconnected)
	c.metrics.SetConnected(linkController, false)
	c.discardCommands()
}

// discardCommands empties the command queue. Commands queued for a lost
// link are not replayed on the next one.
func (c *ControllerClient) discardCommands() {
	for {
		select {
		case cmd := <-c.commands:
			c.commandsFailed.Add(1)
			c.logWarn("discarding command queued for lost link", "command", cmd.String())
		default:
			return
		}
	}
}

// readLoop feeds records from conn into the record queue until the link
// fails. Parse errors are counted and skipped.
func (c *ControllerClient) readLoop(conn io.Reader) error {
	reader := protocol.NewReader(conn)
	for {
		rec, err := reader.Next()
		if err != nil {
			var perr *protocol.ParseError
			if errors.As(err, &perr) {
				c.parseErrors.Add(1)
				c.metrics.IncParseErrors()
				c.logDebug("dropping unparsable record", "error", err)
				continue
			}
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}

		c.recordsRx.Add(1)
		c.lastActivity.Store(c.now().Unix())

		select {
		case c.records <- rec:
		default:
			c.recordsDropped.Add(1)
			c.metrics.IncQueueDrops("records")
			c.logWarn("record queue full, dropping record", "record", rec.Format())
		}
	}
}

// recordWorker hands queued records to the callback in arrival order.
func (c *ControllerClient) recordWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			return
		case rec := <-c.records:
			c.callbackMu.RLock()
			callback := c.onRecord
			c.callbackMu.RUnlock()

			if callback != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							c.logError("record callback panic", "error", fmt.Errorf("%v", r))
						}
					}()
					callback(rec)
				}()
			}
		}
	}
}

// writeLoop writes queued commands to the current link.
func (c *ControllerClient) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			return
		case cmd := <-c.commands:
			if err := c.write(cmd); err != nil {
				c.commandsFailed.Add(1)
				c.logError("command write failed", "command", cmd.String(), "error", err)
			}
		}
	}
}

// write sends cmd on the current link through the circuit breaker.
// A failed write closes the link so the read loop reconnects.
func (c *ControllerClient) write(cmd protocol.Command) error {
	c.connMu.RLock()
	conn, breaker := c.conn, c.breaker
	c.connMu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, c.writeTo(conn, cmd)
	})
	if err != nil {
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			conn.Close()
		}
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}

	c.commandsTx.Add(1)
	c.metrics.IncCommandsSent()
	c.logDebug("command sent", "command", cmd.String())
	return nil
}

// writeTo writes one frame with a deadline where the link supports it.
func (c *ControllerClient) writeTo(conn io.Writer, cmd protocol.Command) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if d, ok := conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		if err := d.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}
	}
	_, err := conn.Write(cmd.Encode())
	return err
}

// Send queues cmd for the controller. Commands are fire-and-forget: a nil
// return means the frame was queued, not that the controller applied it.
// Commands still queued when the link drops are discarded.
//
// Returns:
//   - ErrClosed after Close
//   - ErrNotConnected while the link is down
//   - ErrQueueFull when the command queue has no room
func (c *ControllerClient) Send(ctx context.Context, cmd protocol.Command) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	select {
	case c.commands <- cmd:
		return nil
	default:
		c.metrics.IncQueueDrops("commands")
		return ErrQueueFull
	}
}

// SetOnRecord sets the callback for received records.
//
// The callback runs on a single worker goroutine. Panics in the callback
// are recovered and logged.
func (c *ControllerClient) SetOnRecord(callback func(protocol.Record)) {
	c.callbackMu.Lock()
	c.onRecord = callback
	c.callbackMu.Unlock()
}

// SetOnConnect sets a callback invoked after every successful connect,
// once the init sequence has been written.
func (c *ControllerClient) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

func (c *ControllerClient) notifyConnect() {
	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// SetLogger sets the logger for this client.
func (c *ControllerClient) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// SetMetrics sets the metrics sink. Must be called before Start.
func (c *ControllerClient) SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	c.metrics = m
}

// IsConnected returns true while a controller link is up.
func (c *ControllerClient) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// State returns the current link state.
func (c *ControllerClient) State() LinkState {
	return LinkState(c.state.Load())
}

func (c *ControllerClient) setState(s LinkState) {
	c.state.Store(int32(s))
}

// Address returns the normalised controller address.
func (c *ControllerClient) Address() string {
	return c.address
}

// Stats returns current operational statistics.
func (c *ControllerClient) Stats() ControllerStats {
	c.connMu.RLock()
	breaker := c.breaker
	c.connMu.RUnlock()

	return ControllerStats{
		RecordsRx:       c.recordsRx.Load(),
		RecordsDropped:  c.recordsDropped.Load(),
		ParseErrors:     c.parseErrors.Load(),
		CommandsTx:      c.commandsTx.Load(),
		CommandsFailed:  c.commandsFailed.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
		State:           c.State().String(),
		Breaker:         breaker.State().String(),
	}
}

// HealthCheck reports ErrNotConnected while the link is down.
func (c *ControllerClient) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *ControllerClient) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close stops all loops and closes the link. Safe to call multiple times.
func (c *ControllerClient) Close() error {
	c.done.Close()

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	cancel := c.cancel
	c.connMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}

	c.wg.Wait()
	c.setState(StateDisconnected)
	c.logInfo("controller link closed")
	return nil
}

func (c *ControllerClient) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *ControllerClient) logDebug(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *ControllerClient) logInfo(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *ControllerClient) logWarn(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (c *ControllerClient) logError(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}

package board

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

const (
	// DefaultBaudRate is the console baud rate of the board.
	DefaultBaudRate = 9600
	// DefaultBufferSize is the default size for the lines channel buffer.
	DefaultBufferSize = 100
)

// Serial reads the board's console over a serial port.
type Serial struct {
	port     string
	baudRate int
	bufSize  int
	log      *zap.SugaredLogger

	conn      serial.Port
	lines     chan Line
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New creates a new Serial device with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int, log *zap.SugaredLogger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		log:      log,
		lines:    make(chan Line, bufSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Connect opens the serial port and starts reading lines.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true

	go d.readLines(port)

	return nil
}

// Close stops reading and closes the port. The lines channel is closed by
// the reader once it exits.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			d.log.Warnw("error closing serial port", "port", d.port, "error", err)
		}
		d.conn = nil
	}

	d.connected = false
	return nil
}

// Lines returns the channel of parsed lines.
func (d *Serial) Lines() <-chan Line {
	return d.lines
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

func (d *Serial) readLines(r io.Reader) {
	defer close(d.lines)
	scan(d.ctx, r, d.lines, d.log)
}

// scan parses lines from r into out until r is exhausted or ctx is done.
func scan(ctx context.Context, r io.Reader, out chan<- Line, log *zap.SugaredLogger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		raw := scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}

		select {
		case out <- ParseLine(raw, time.Now()):
		case <-ctx.Done():
			return
		default:
			log.Warnw("lines channel full, dropping line", "line", raw)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Warnw("error reading from serial port", "error", err)
	}
}

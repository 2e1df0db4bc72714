package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/imbesat-rizvi/imperio/internal/audio"
	"github.com/imbesat-rizvi/imperio/internal/errkind"
)

// UDPConfig configures a UDPDriver
type UDPConfig struct {
	Address     string
	BufferSize  int
	ReadTimeout time.Duration // how often the receive loop checks for shutdown
}

// UDPDriver receives raw little-endian 16-bit PCM over UDP. Every datagram
// is delivered as one frame.
type UDPDriver struct {
	config UDPConfig
	logger *slog.Logger

	mu        sync.Mutex
	localAddr net.Addr

	// Statistics
	packetsReceived  atomic.Uint64
	packetsDelivered atomic.Uint64
	malformedPackets atomic.Uint64
}

// UDPStatistics represents receiver statistics
type UDPStatistics struct {
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsDelivered uint64 `json:"packets_delivered"`
	MalformedPackets uint64 `json:"malformed_packets"`
}

// NewUDPDriver creates a new UDP audio source
func NewUDPDriver(cfg UDPConfig, logger *slog.Logger) (*UDPDriver, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("UDP address cannot be empty: %w", errkind.ErrConfiguration)
	}

	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 65536
	}

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 1 * time.Second
	}

	return &UDPDriver{
		config: cfg,
		logger: logger.With("component", "udp_driver"),
	}, nil
}

// Open starts listening for audio datagrams
func (d *UDPDriver) Open(params audio.DeviceParams, fill audio.FillFunc, fail func(error)) (audio.DeviceStream, error) {
	if params.Channels != 1 || params.BitDepth != 16 {
		return nil, fmt.Errorf("UDP source delivers mono 16-bit audio, got %d channels at %d bits", params.Channels, params.BitDepth)
	}

	addr, err := net.ResolveUDPAddr("udp", d.config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP: %w", err)
	}

	if err := conn.SetReadBuffer(d.config.BufferSize); err != nil {
		d.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", d.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	d.mu.Lock()
	d.localAddr = conn.LocalAddr()
	d.mu.Unlock()

	d.logger.Info("UDP source listening",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("expected_frame_bytes", params.FrameBytes()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &udpStream{conn: conn, cancel: cancel, logger: d.logger}
	s.wg.Add(1)
	go d.receiveLoop(ctx, s, fill, fail)

	return s, nil
}

// LocalAddr returns the address of the most recently opened stream
func (d *UDPDriver) LocalAddr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.localAddr
}

// Terminate implements audio.Driver
func (d *UDPDriver) Terminate() error {
	return nil
}

// GetStatistics returns current receiver statistics
func (d *UDPDriver) GetStatistics() UDPStatistics {
	return UDPStatistics{
		PacketsReceived:  d.packetsReceived.Load(),
		PacketsDelivered: d.packetsDelivered.Load(),
		MalformedPackets: d.malformedPackets.Load(),
	}
}

// receiveLoop is the main datagram receiving loop
func (d *UDPDriver) receiveLoop(ctx context.Context, s *udpStream, fill audio.FillFunc, fail func(error)) {
	defer s.wg.Done()

	buffer := make([]byte, d.config.BufferSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Set read deadline to check for cancellation periodically
		if err := s.conn.SetReadDeadline(time.Now().Add(d.config.ReadTimeout)); err != nil {
			if ctx.Err() != nil {
				return
			}
			fail(err)
			return
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				fail(io.EOF)
				return
			}
			d.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
			continue
		}

		d.packetsReceived.Add(1)

		if n == 0 || n%2 != 0 {
			d.malformedPackets.Add(1)
			d.logger.Warn("Dropping malformed audio packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
			)
			continue
		}

		if err := fill(buffer[:n]); err != nil {
			return
		}
		d.packetsDelivered.Add(1)
	}
}

type udpStream struct {
	conn   *net.UDPConn
	cancel context.CancelFunc
	logger *slog.Logger
	wg     sync.WaitGroup

	stopOnce sync.Once
	stopErr  error
}

// Stop cancels the receive loop and closes the socket
func (s *udpStream) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		if err := s.conn.Close(); err != nil {
			s.stopErr = err
		}
		s.wg.Wait()
		s.logger.Debug("UDP source stopped")
	})
	return s.stopErr
}

func (s *udpStream) Close() error {
	return s.Stop()
}

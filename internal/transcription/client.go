package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/imbesat-rizvi/imperio/internal/errkind"
	"github.com/imbesat-rizvi/imperio/internal/metrics"
	"github.com/imbesat-rizvi/imperio/internal/protocol"
)

// ErrStreamClosed is returned by Recv after the stream has been closed locally
var ErrStreamClosed = errors.New("recognition stream closed")

// Client is a WebSocket streaming recognition client
type Client struct {
	config  Config
	dialer  *websocket.Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Statistics
	streamsOpened     atomic.Uint64
	streamsFailed     atomic.Uint64
	audioBytesSent    atomic.Uint64
	messagesReceived  atomic.Uint64
	finalizesSent     atomic.Uint64
	keepAlivesSent    atomic.Uint64
	recognitionErrors atomic.Uint64
}

// Config contains recognition client configuration
type Config struct {
	Endpoint          string
	APIKey            string
	HandshakeTimeout  time.Duration
	KeepAliveInterval time.Duration
	WriteTimeout      time.Duration
}

// ClientStats represents client statistics
type ClientStats struct {
	StreamsOpened     uint64 `json:"streams_opened"`
	StreamsFailed     uint64 `json:"streams_failed"`
	AudioBytesSent    uint64 `json:"audio_bytes_sent"`
	MessagesReceived  uint64 `json:"messages_received"`
	FinalizesSent     uint64 `json:"finalizes_sent"`
	KeepAlivesSent    uint64 `json:"keep_alives_sent"`
	RecognitionErrors uint64 `json:"recognition_errors"`
}

// NewClient creates a new recognition client
func NewClient(config Config, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty: %w", errkind.ErrConfiguration)
	}

	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}

	if config.KeepAliveInterval <= 0 {
		config.KeepAliveInterval = 5 * time.Second
	}

	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}

	return &Client{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		logger:  logger.With("component", "recognition_client"),
		metrics: m,
	}, nil
}

// StreamingRecognize opens a recognition stream and starts sending the
// requests yielded by requests. Responses are read from the returned stream.
func (c *Client) StreamingRecognize(ctx context.Context, cfg RecognitionConfig, requests RequestSource) (ResponseStream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	target, err := protocol.ListenURL(c.config.Endpoint, protocol.ListenParams{
		Encoding:        protocol.EncodingLinear16,
		SampleRate:      cfg.SampleRate,
		Channels:        1,
		Language:        cfg.LanguageCode,
		Model:           cfg.Model,
		InterimResults:  cfg.InterimResults,
		Punctuate:       cfg.Punctuation,
		MaxAlternatives: cfg.MaxAlternatives,
		Enhanced:        cfg.Enhanced,
		Keywords:        cfg.Phrases,
	})
	if err != nil {
		return nil, fmt.Errorf("listen url: %w: %w", errkind.ErrConfiguration, err)
	}

	header := http.Header{}
	if c.config.APIKey != "" {
		header.Set("Authorization", "Token "+c.config.APIKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		c.streamsFailed.Add(1)
		if resp != nil {
			return nil, fmt.Errorf("dial recognition service (status %d): %w: %w", resp.StatusCode, errkind.ErrNetwork, err)
		}
		return nil, fmt.Errorf("dial recognition service: %w: %w", errkind.ErrNetwork, err)
	}

	c.streamsOpened.Add(1)
	c.metrics.RecordRecognitionStream()

	streamCtx, cancel := context.WithCancel(ctx)
	s := &stream{
		client:   c,
		conn:     conn,
		parent:   ctx,
		ctx:      streamCtx,
		cancel:   cancel,
		requests: requests,
		logger:   c.logger,
	}
	// Unblocks both the reader and the writer once the stream is done
	context.AfterFunc(streamCtx, func() { conn.Close() })

	s.wg.Add(1)
	go s.sendLoop()

	c.logger.Info("Recognition stream opened",
		slog.Int("sample_rate", cfg.SampleRate),
		slog.String("language", cfg.LanguageCode),
		slog.Int("phrases", len(cfg.Phrases)))

	return s, nil
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	return ClientStats{
		StreamsOpened:     c.streamsOpened.Load(),
		StreamsFailed:     c.streamsFailed.Load(),
		AudioBytesSent:    c.audioBytesSent.Load(),
		MessagesReceived:  c.messagesReceived.Load(),
		FinalizesSent:     c.finalizesSent.Load(),
		KeepAlivesSent:    c.keepAlivesSent.Load(),
		RecognitionErrors: c.recognitionErrors.Load(),
	}
}

type pulled struct {
	req Request
	err error
}

// stream is one recognition session. The send loop is the only writer on
// conn; Recv is the only reader.
type stream struct {
	client   *Client
	conn     *websocket.Conn
	parent   context.Context
	ctx      context.Context
	cancel   context.CancelFunc
	requests RequestSource
	logger   *slog.Logger

	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once

	mu      sync.Mutex
	sendErr error
}

// Recv returns the next response. Messages that carry no transcription
// results are returned as responses with no results.
func (s *stream) Recv() (*Response, error) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, s.readError(err)
		}
		if messageType != websocket.TextMessage {
			continue
		}

		s.client.messagesReceived.Add(1)
		s.client.metrics.RecordResponse()

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			s.client.recognitionErrors.Add(1)
			return nil, fmt.Errorf("decode response: %w: %w", errkind.ErrNetwork, err)
		}

		switch msg.Type {
		case protocol.TypeError:
			s.client.recognitionErrors.Add(1)
			return nil, fmt.Errorf("recognition service error %s: %s: %w", msg.Code, msg.Description, errkind.ErrNetwork)
		case protocol.TypeResults:
			return toResponse(msg.TranscriptionResults()), nil
		default:
			s.logger.Debug("Recognition event", slog.String("type", msg.Type))
			return &Response{}, nil
		}
	}
}

func (s *stream) readError(err error) error {
	if sendErr := s.failure(); sendErr != nil {
		return sendErr
	}
	if ctxErr := s.parent.Err(); ctxErr != nil {
		return ctxErr
	}
	if s.closed.Load() {
		return ErrStreamClosed
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return io.EOF
	}
	s.client.recognitionErrors.Add(1)
	return fmt.Errorf("receive: %w: %w", errkind.ErrNetwork, err)
}

// Close stops sending, closes the connection and waits for the stream's
// goroutines to exit
func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		s.wg.Wait()
		if closeErr := s.conn.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			err = closeErr
		}
	})
	return err
}

// fail records the first send-side error and tears the connection down so
// that Recv reports it
func (s *stream) fail(err error) {
	s.mu.Lock()
	if s.sendErr == nil {
		s.sendErr = err
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *stream) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendErr
}

func (s *stream) pull(out chan<- pulled) {
	defer s.wg.Done()
	for {
		req, err := s.requests.Next(s.ctx)
		select {
		case out <- pulled{req: req, err: err}:
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *stream) sendLoop() {
	defer s.wg.Done()

	reqs := make(chan pulled)
	s.wg.Add(1)
	go s.pull(reqs)

	keepAlive := s.client.config.KeepAliveInterval
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	lastSend := time.Now()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-ticker.C:
			if time.Since(lastSend) < keepAlive {
				continue
			}
			if err := s.writeControl(protocol.ControlKeepAlive); err != nil {
				s.fail(err)
				return
			}
			s.client.keepAlivesSent.Add(1)
			lastSend = time.Now()

		case p := <-reqs:
			if p.err != nil {
				if errors.Is(p.err, io.EOF) {
					if err := s.writeControl(protocol.ControlCloseStream); err != nil {
						s.fail(err)
					}
					return
				}
				if s.ctx.Err() != nil {
					return
				}
				s.fail(p.err)
				return
			}

			if err := s.send(p.req); err != nil {
				s.fail(err)
				return
			}
			lastSend = time.Now()
		}
	}
}

func (s *stream) send(req Request) error {
	if len(req.Audio) > 0 {
		if err := s.write(websocket.BinaryMessage, req.Audio); err != nil {
			return fmt.Errorf("send audio: %w: %w", errkind.ErrNetwork, err)
		}
		s.client.audioBytesSent.Add(uint64(len(req.Audio)))
		s.client.metrics.RecordAudioSent(len(req.Audio))
	}

	if req.EndOfUtterance {
		if err := s.writeControl(protocol.ControlFinalize); err != nil {
			return err
		}
		s.client.finalizesSent.Add(1)
	}

	return nil
}

func (s *stream) writeControl(controlType string) error {
	data, err := protocol.EncodeControl(controlType)
	if err != nil {
		return err
	}
	if err := s.write(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w: %w", controlType, errkind.ErrNetwork, err)
	}
	return nil
}

func (s *stream) write(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.client.config.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func toResponse(results []protocol.Result) *Response {
	resp := &Response{Results: make([]Result, 0, len(results))}
	for _, r := range results {
		result := Result{
			Alternatives: make([]Alternative, 0, len(r.Alternatives)),
			IsFinal:      r.IsFinal,
		}
		for _, alt := range r.Alternatives {
			result.Alternatives = append(result.Alternatives, Alternative{
				Text:       alt.Transcript,
				Confidence: alt.Confidence,
			})
		}
		resp.Results = append(resp.Results, result)
	}
	return resp
}

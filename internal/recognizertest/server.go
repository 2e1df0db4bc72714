// Package recognizertest provides a scripted streaming recognition service
// for tests and local runs.
package recognizertest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/imbesat-rizvi/imperio/internal/protocol"
)

// Session records what one client sent
type Session struct {
	ID         string                `json:"id"`
	Params     protocol.ListenParams `json:"params"`
	AudioBytes int                   `json:"audio_bytes"`
	Controls   []string              `json:"controls"`
	Finals     []string              `json:"finals"`
	StartedAt  time.Time             `json:"started_at"`
}

// Server is an http.Handler speaking the streaming recognition protocol.
//
// Audio is attributed to the current utterance. An utterance ends with a
// Finalize control, after FinalEvery bytes when set, or at CloseStream,
// and is answered with a final result carrying the next transcript.
type Server struct {
	// Transcripts are used in turn, one per utterance. When exhausted the
	// last one is repeated; when empty a numbered placeholder is used.
	Transcripts []string
	Confidence  float64
	// InterimEvery sends an interim result after every InterimEvery bytes
	// of an utterance. Zero disables interim results.
	InterimEvery int
	// FinalEvery ends the utterance after FinalEvery bytes. Zero disables.
	FinalEvery int
	// FailAfter sends an Error message and drops the connection once a
	// session has received FailAfter bytes. Zero disables.
	FailAfter int
	// APIKey, when set, is required as "Token <key>" authorization
	APIKey string
	Logger *slog.Logger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions []*Session
}

// NewServer creates a Server answering with the given transcripts
func NewServer(logger *slog.Logger, transcripts ...string) *Server {
	return &Server{
		Transcripts: transcripts,
		Confidence:  0.9,
		Logger:      logger,
	}
}

// Start serves s on a local httptest server
func Start(s *Server) *httptest.Server {
	return httptest.NewServer(s)
}

// URL returns the websocket URL of an httptest server
func URL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

// Sessions returns a snapshot of the sessions seen so far
func (s *Server) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		cp := *sess
		cp.Controls = append([]string(nil), sess.Controls...)
		cp.Finals = append([]string(nil), sess.Finals...)
		out = append(out, cp)
	}
	return out
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.APIKey != "" && r.Header.Get("Authorization") != "Token "+s.APIKey {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	params, err := protocol.ParseListenParams(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger().Error("Upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	sess := &Session{ID: uuid.NewString(), Params: params, StartedAt: time.Now()}
	s.mu.Lock()
	s.sessions = append(s.sessions, sess)
	s.mu.Unlock()

	logger := s.logger().With(slog.String("session_id", sess.ID))
	logger.Info("Session started",
		slog.Int("sample_rate", params.SampleRate),
		slog.String("language", params.Language))

	if err := s.writeJSON(conn, protocol.Message{Type: protocol.TypeMetadata, RequestID: sess.ID}); err != nil {
		return
	}

	if err := s.serveSession(conn, sess); err != nil {
		logger.Warn("Session ended with error", slog.String("error", err.Error()))
		return
	}
	logger.Info("Session finished", slog.Int("audio_bytes", s.audioBytes(sess)))
}

func (s *Server) serveSession(conn *websocket.Conn, sess *Session) error {
	utterance := 0

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.mu.Lock()
			sess.AudioBytes += len(data)
			total := sess.AudioBytes
			s.mu.Unlock()

			if s.FailAfter > 0 && total >= s.FailAfter {
				msg, _ := protocol.EncodeError("SERVER_ERROR", "scripted failure")
				conn.WriteMessage(websocket.TextMessage, msg)
				return fmt.Errorf("scripted failure after %d bytes", total)
			}

			before := utterance
			utterance += len(data)

			if s.InterimEvery > 0 && utterance/s.InterimEvery > before/s.InterimEvery {
				if err := s.sendResult(conn, sess, false); err != nil {
					return err
				}
			}
			if s.FinalEvery > 0 && utterance >= s.FinalEvery {
				if err := s.sendResult(conn, sess, true); err != nil {
					return err
				}
				utterance = 0
			}

		case websocket.TextMessage:
			var ctrl protocol.ControlMessage
			if err := json.Unmarshal(data, &ctrl); err != nil {
				return fmt.Errorf("invalid control message: %w", err)
			}
			s.mu.Lock()
			sess.Controls = append(sess.Controls, ctrl.Type)
			s.mu.Unlock()

			switch ctrl.Type {
			case protocol.ControlFinalize:
				if utterance > 0 {
					if err := s.sendResult(conn, sess, true); err != nil {
						return err
					}
					utterance = 0
				}
			case protocol.ControlCloseStream:
				if utterance > 0 {
					if err := s.sendResult(conn, sess, true); err != nil {
						return err
					}
				}
				return conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			}
		}
	}
}

func (s *Server) sendResult(conn *websocket.Conn, sess *Session, final bool) error {
	s.mu.Lock()
	text := s.transcript(len(sess.Finals))
	if final {
		sess.Finals = append(sess.Finals, text)
	}
	s.mu.Unlock()

	// Interim hypotheses carry the first word only
	if words := strings.Fields(text); !final && len(words) > 0 {
		text = words[0]
	}

	data, err := protocol.EncodeResults([]protocol.Result{{
		Alternatives: []protocol.Alternative{{Transcript: text, Confidence: s.Confidence}},
		IsFinal:      final,
	}})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) transcript(n int) string {
	switch {
	case len(s.Transcripts) == 0:
		return fmt.Sprintf("utterance %d", n+1)
	case n < len(s.Transcripts):
		return s.Transcripts[n]
	default:
		return s.Transcripts[len(s.Transcripts)-1]
	}
}

func (s *Server) writeJSON(conn *websocket.Conn, msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) audioBytes(sess *Session) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sess.AudioBytes
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

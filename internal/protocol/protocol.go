package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Server message types
const (
	TypeResults       = "Results"
	TypeMetadata      = "Metadata"
	TypeSpeechStarted = "SpeechStarted"
	TypeUtteranceEnd  = "UtteranceEnd"
	TypeError         = "Error"
)

// Client control message types, sent as text frames
const (
	ControlFinalize    = "Finalize"
	ControlKeepAlive   = "KeepAlive"
	ControlCloseStream = "CloseStream"
)

// EncodingLinear16 is little-endian signed 16-bit PCM
const EncodingLinear16 = "linear16"

// ErrMalformedMessage is returned when a server message cannot be decoded
var ErrMalformedMessage = errors.New("malformed recognition message")

// Alternative is one recognition hypothesis
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Result is one recognition result with its ranked alternatives
type Result struct {
	Alternatives []Alternative `json:"alternatives"`
	IsFinal      bool          `json:"is_final"`
	Stability    float64       `json:"stability,omitempty"`
}

// Channel carries the alternatives of a single-result message
type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Message is a server message.
//
// A Results message carries its results either as a "results" array or,
// for services that only report one result per message, as a "channel"
// object with a top-level "is_final" flag.
type Message struct {
	Type        string   `json:"type"`
	Results     []Result `json:"results,omitempty"`
	Channel     *Channel `json:"channel,omitempty"`
	IsFinal     bool     `json:"is_final,omitempty"`
	SpeechFinal bool     `json:"speech_final,omitempty"`
	RequestID   string   `json:"request_id,omitempty"`
	Description string   `json:"description,omitempty"`
	Code        string   `json:"err_code,omitempty"`
}

// ControlMessage is a client control message
type ControlMessage struct {
	Type string `json:"type"`
}

// ParseMessage decodes and validates a server message
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if err := ValidateMessage(&msg); err != nil {
		return nil, err
	}

	return &msg, nil
}

// ValidateMessage checks that a decoded message is well-formed
func ValidateMessage(msg *Message) error {
	if msg.Type == "" {
		return fmt.Errorf("%w: missing message type", ErrMalformedMessage)
	}

	if msg.Type == TypeResults && msg.Results != nil && msg.Channel != nil {
		return fmt.Errorf("%w: results message has both results and channel", ErrMalformedMessage)
	}

	for i, r := range msg.TranscriptionResults() {
		for j, alt := range r.Alternatives {
			if alt.Confidence < 0 || alt.Confidence > 1 {
				return fmt.Errorf("%w: result %d alternative %d confidence %f out of range",
					ErrMalformedMessage, i, j, alt.Confidence)
			}
		}
	}

	return nil
}

// TranscriptionResults returns the results carried by a Results message, in
// order. Other message types carry none.
func (m *Message) TranscriptionResults() []Result {
	if m.Type != TypeResults {
		return nil
	}
	if m.Channel != nil {
		return []Result{{Alternatives: m.Channel.Alternatives, IsFinal: m.IsFinal}}
	}
	return m.Results
}

// IsValidMessageType checks if a server message type is known
func IsValidMessageType(messageType string) bool {
	switch messageType {
	case TypeResults, TypeMetadata, TypeSpeechStarted, TypeUtteranceEnd, TypeError:
		return true
	default:
		return false
	}
}

// EncodeControl encodes a client control message
func EncodeControl(controlType string) ([]byte, error) {
	switch controlType {
	case ControlFinalize, ControlKeepAlive, ControlCloseStream:
	default:
		return nil, fmt.Errorf("unknown control message type %q", controlType)
	}
	return json.Marshal(ControlMessage{Type: controlType})
}

// EncodeResults encodes a Results message
func EncodeResults(results []Result) ([]byte, error) {
	return json.Marshal(Message{Type: TypeResults, Results: results})
}

// EncodeError encodes an Error message
func EncodeError(code, description string) ([]byte, error) {
	return json.Marshal(Message{Type: TypeError, Code: code, Description: description})
}

// ListenParams are the streaming session parameters sent as query
// parameters of the listen URL
type ListenParams struct {
	Encoding        string
	SampleRate      int
	Channels        int
	Language        string
	Model           string
	InterimResults  bool
	Punctuate       bool
	MaxAlternatives int
	Enhanced        bool
	Keywords        []string
}

// Validate checks the listen parameters
func (p ListenParams) Validate() error {
	if p.Encoding != EncodingLinear16 {
		return fmt.Errorf("unsupported encoding %q", p.Encoding)
	}
	if p.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", p.SampleRate)
	}
	if p.Channels != 1 {
		return fmt.Errorf("only mono audio is supported, got %d channels", p.Channels)
	}
	if p.MaxAlternatives < 0 {
		return fmt.Errorf("max alternatives must not be negative, got %d", p.MaxAlternatives)
	}
	return nil
}

// ListenURL builds the streaming endpoint URL for p. Query parameters
// already present on endpoint are kept unless p overrides them.
func ListenURL(endpoint string, p ListenParams) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("endpoint scheme must be ws or wss, got %q", u.Scheme)
	}

	q := u.Query()
	q.Set("encoding", p.Encoding)
	q.Set("sample_rate", strconv.Itoa(p.SampleRate))
	q.Set("channels", strconv.Itoa(p.Channels))
	q.Set("interim_results", strconv.FormatBool(p.InterimResults))
	q.Set("punctuate", strconv.FormatBool(p.Punctuate))
	if p.Language != "" {
		q.Set("language", p.Language)
	}
	if p.Model != "" {
		q.Set("model", p.Model)
	}
	if p.MaxAlternatives > 0 {
		q.Set("alternatives", strconv.Itoa(p.MaxAlternatives))
	}
	if p.Enhanced {
		q.Set("tier", "enhanced")
	}
	q.Del("keywords")
	for _, kw := range p.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			q.Add("keywords", kw)
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseListenParams reads listen parameters back from a listen URL query
func ParseListenParams(query url.Values) (ListenParams, error) {
	p := ListenParams{
		Encoding: query.Get("encoding"),
		Language: query.Get("language"),
		Model:    query.Get("model"),
		Enhanced: query.Get("tier") == "enhanced",
		Keywords: query["keywords"],
	}

	var err error
	if p.SampleRate, err = strconv.Atoi(query.Get("sample_rate")); err != nil {
		return p, fmt.Errorf("invalid sample_rate: %w", err)
	}
	if p.Channels, err = strconv.Atoi(query.Get("channels")); err != nil {
		return p, fmt.Errorf("invalid channels: %w", err)
	}
	if v := query.Get("alternatives"); v != "" {
		if p.MaxAlternatives, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("invalid alternatives: %w", err)
		}
	}
	p.InterimResults, _ = strconv.ParseBool(query.Get("interim_results"))
	p.Punctuate, _ = strconv.ParseBool(query.Get("punctuate"))

	return p, p.Validate()
}

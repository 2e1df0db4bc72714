package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/imbesat-rizvi/imperio/internal/errkind"
)

// fakeDriver replays frames from a goroutine, then reports failErr (or io.EOF)
type fakeDriver struct {
	frames  [][]byte
	openErr error
	failErr error
	hold    bool // keep the stream open after the last frame

	params     DeviceParams
	stopped    int
	closed     int
	terminated int
	done       chan struct{}
}

func (d *fakeDriver) Open(params DeviceParams, fill FillFunc, fail func(error)) (DeviceStream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.params = params
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		for _, f := range d.frames {
			fill(f)
		}
		if d.hold {
			return
		}
		if d.failErr != nil {
			fail(d.failErr)
		} else {
			fail(io.EOF)
		}
	}()

	return d, nil
}

func (d *fakeDriver) Terminate() error {
	d.terminated++
	return nil
}

func (d *fakeDriver) Stop() error {
	d.stopped++
	return nil
}

func (d *fakeDriver) Close() error {
	d.closed++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testStreamerConfig() StreamerConfig {
	return StreamerConfig{SampleRate: 16000, BitDepth: 16, ChunkFrames: 1600}
}

func drain(t *testing.T, s *Streamer) ([]byte, error) {
	t.Helper()
	var all []byte
	for {
		chunk, err := s.Next(context.Background())
		if err != nil {
			return all, err
		}
		all = append(all, chunk...)
	}
}

func TestStreamerYieldsAllAudio(t *testing.T) {
	driver := &fakeDriver{frames: [][]byte{{1, 2}, {3, 4}, {5, 6}}}

	s, err := OpenStreamer(driver, testStreamerConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("OpenStreamer failed: %v", err)
	}

	audio, err := drain(t, s)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Expected io.EOF, got %v", err)
	}
	if !bytes.Equal(audio, []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("Unexpected audio %v", audio)
	}

	if driver.params.Channels != 1 || driver.params.SampleRate != 16000 || driver.params.FramesPerBuffer != 1600 {
		t.Errorf("Unexpected device params %+v", driver.params)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}
	if driver.stopped != 1 || driver.closed != 1 || driver.terminated != 1 {
		t.Errorf("Expected one stop/close/terminate, got %d/%d/%d",
			driver.stopped, driver.closed, driver.terminated)
	}
}

func TestStreamerClosedBeforeFirstPull(t *testing.T) {
	driver := &fakeDriver{hold: true}

	s, err := OpenStreamer(driver, testStreamerConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("OpenStreamer failed: %v", err)
	}
	<-driver.done

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	audio, err := drain(t, s)
	if !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}
	if len(audio) != 0 {
		t.Errorf("Expected empty sequence, got %d bytes", len(audio))
	}
}

func TestStreamerInterrupt(t *testing.T) {
	driver := &fakeDriver{frames: [][]byte{{1, 2}}, hold: true}

	s, err := OpenStreamer(driver, testStreamerConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("OpenStreamer failed: %v", err)
	}
	defer s.Close()
	<-driver.done

	s.Interrupt()

	audio, err := drain(t, s)
	if !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}
	if !bytes.Equal(audio, []byte{1, 2}) {
		t.Errorf("Expected queued audio to be delivered, got %v", audio)
	}
}

func TestStreamerDeviceFailure(t *testing.T) {
	driver := &fakeDriver{
		frames:  [][]byte{{1, 2}},
		failErr: errors.New("input overflow"),
	}

	s, err := OpenStreamer(driver, testStreamerConfig(), testLogger(), nil)
	if err != nil {
		t.Fatalf("OpenStreamer failed: %v", err)
	}
	defer s.Close()

	audio, err := drain(t, s)
	if !errors.Is(err, errkind.ErrDevice) {
		t.Fatalf("Expected ErrDevice, got %v", err)
	}
	if !bytes.Equal(audio, []byte{1, 2}) {
		t.Errorf("Expected queued audio before the failure, got %v", audio)
	}
}

func TestOpenStreamerErrors(t *testing.T) {
	tests := []struct {
		name    string
		driver  *fakeDriver
		cfg     StreamerConfig
		wantErr error
	}{
		{
			name:    "device open failure",
			driver:  &fakeDriver{openErr: errors.New("no default input device")},
			cfg:     testStreamerConfig(),
			wantErr: errkind.ErrDevice,
		},
		{
			name:    "zero sample rate",
			driver:  &fakeDriver{},
			cfg:     StreamerConfig{SampleRate: 0, BitDepth: 16, ChunkFrames: 1600},
			wantErr: errkind.ErrConfiguration,
		},
		{
			name:    "unsupported bit depth",
			driver:  &fakeDriver{},
			cfg:     StreamerConfig{SampleRate: 16000, BitDepth: 24, ChunkFrames: 1600},
			wantErr: errkind.ErrConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenStreamer(tt.driver, tt.cfg, testLogger(), nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	driver := &fakeDriver{openErr: errors.New("busy")}
	OpenStreamer(driver, testStreamerConfig(), testLogger(), nil)
	if driver.terminated != 1 {
		t.Errorf("Expected driver to be terminated after a failed open, got %d", driver.terminated)
	}
}

func TestWithStreamerReleasesOnError(t *testing.T) {
	driver := &fakeDriver{hold: true}
	fnErr := errors.New("recognizer unavailable")

	err := WithStreamer(driver, testStreamerConfig(), testLogger(), nil, func(s *Streamer) error {
		return fnErr
	})

	if !errors.Is(err, fnErr) {
		t.Errorf("Expected fn error, got %v", err)
	}
	if driver.stopped != 1 || driver.closed != 1 || driver.terminated != 1 {
		t.Errorf("Expected streamer to be released, got %d/%d/%d",
			driver.stopped, driver.closed, driver.terminated)
	}
}

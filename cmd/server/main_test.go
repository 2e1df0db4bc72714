package main

import (
	"testing"

	"github.com/imbesat-rizvi/imperio/internal/config"
)

func TestNewPipelineConfig(t *testing.T) {
	tests := []struct {
		name           string
		modify         func(c *config.Config)
		segmentation   bool
		frameBytes     int
		classifierRate int
		adapter        bool
	}{
		{
			name:         "segmentation disabled",
			modify:       func(c *config.Config) { c.VAD.Enabled = false },
			segmentation: false,
		},
		{
			name:           "chunk sized frames",
			modify:         func(c *config.Config) {},
			segmentation:   true,
			classifierRate: 16000,
		},
		{
			name: "fixed frames at a lower classifier rate",
			modify: func(c *config.Config) {
				c.VAD.FrameDuration = 0.02
				c.VAD.ClassifierRate = 8000
			},
			segmentation:   true,
			frameBytes:     640,
			classifierRate: 8000,
			adapter:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Recognition.Endpoint = "ws://localhost:8765/v1/listen"
			cfg.Recognition.Phrases = []string{"lights on"}
			tt.modify(&cfg)

			pc, classifier, err := newPipelineConfig(&cfg)
			if err != nil {
				t.Fatalf("newPipelineConfig failed: %v", err)
			}

			if pc.Streamer.ChunkFrames != 1600 || pc.Streamer.SampleRate != 16000 {
				t.Errorf("Unexpected streamer config %+v", pc.Streamer)
			}
			if pc.Recognition.LanguageCode != "en-US" || len(pc.Recognition.Phrases) != 1 || pc.Recognition.MaxAlternatives != 1 {
				t.Errorf("Unexpected recognition config %+v", pc.Recognition)
			}

			if !tt.segmentation {
				if pc.Segmentation != nil || classifier != nil {
					t.Errorf("Expected no segmentation, got %+v", pc.Segmentation)
				}
				return
			}

			if pc.Segmentation == nil || classifier == nil {
				t.Fatalf("Expected segmentation with a classifier")
			}
			seg := pc.Segmentation
			if seg.PaddingFrames != 20 || seg.Ratio != 0.9 {
				t.Errorf("Unexpected hysteresis %d/%f", seg.PaddingFrames, seg.Ratio)
			}
			if seg.FrameBytes != tt.frameBytes || seg.ClassifierRate != tt.classifierRate {
				t.Errorf("Expected %d byte frames at %d Hz, got %d at %d", tt.frameBytes, tt.classifierRate, seg.FrameBytes, seg.ClassifierRate)
			}
			if (seg.Adapter != nil) != tt.adapter {
				t.Errorf("Expected adapter %v", tt.adapter)
			}
		})
	}
}

func TestDeviceConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Device.Source = "udp"
	cfg.Device.UDPAddress = "0.0.0.0:4444"

	dc := deviceConfig(&cfg)
	if dc.Kind != "udp" || dc.UDP.Address != "0.0.0.0:4444" || dc.UDP.BufferSize != 65536 {
		t.Errorf("Unexpected device config %+v", dc)
	}
}

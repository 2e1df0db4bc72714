// Package device provides the audio sources the capture streamer reads
// from: the default microphone through PortAudio (built with -tags
// portaudio), a WAV file played back in real time, and raw PCM datagrams
// received over UDP. Every source implements audio.Driver and delivers
// frames from its own goroutine or audio thread.
package device

package audio

// DeviceParams describes the capture stream requested from a Driver.
type DeviceParams struct {
	SampleRate      int
	Channels        int
	BitDepth        int
	FramesPerBuffer int
}

// FrameBytes returns the size in bytes of one device buffer.
func (p DeviceParams) FrameBytes() int {
	return p.FramesPerBuffer * p.Channels * p.BitDepth / 8
}

// FillFunc is invoked by a driver, from its own goroutine or thread, with each
// captured frame. The frame may be reused by the driver after FillFunc returns.
type FillFunc func(frame []byte) error

// Driver is an audio input device.
//
// Open starts delivering frames to fill. A driver reports the end of its
// source by calling fail with io.EOF, and an asynchronous device failure by
// calling fail with any other error; fail is called at most once.
type Driver interface {
	Open(params DeviceParams, fill FillFunc, fail func(error)) (DeviceStream, error)
	Terminate() error
}

// DeviceStream is an open capture stream.
type DeviceStream interface {
	Stop() error
	Close() error
}

package audio

import (
	"time"

	"github.com/google/uuid"

	"github.com/Nat1anWasTaken/fortis/internal/domain"
	"github.com/Nat1anWasTaken/fortis/internal/ports"
)

// chunker assembles raw callback frames into fixed-duration chunks with
// per-session monotonic sequence numbers. It runs inside the device data
// callback, so feed does nothing but copy bytes and hand full buffers to
// the sink; a trailing partial interval is discarded on rotate or close.
type chunker struct {
	sink       ports.ChunkSink
	sampleRate int
	channels   int
	chunkBytes int

	session domain.CaptureSessionID
	seq     uint64
	buf     []byte
	fill    int
}

func newChunker(cfg ports.CaptureConfig, sink ports.ChunkSink) *chunker {
	interval := cfg.ChunkInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	samples := int(int64(cfg.SampleRate) * int64(interval) / int64(time.Second))
	if samples < 1 {
		samples = 1
	}
	return &chunker{
		sink:       sink,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		chunkBytes: samples * 2 * cfg.Channels,
		session:    domain.CaptureSessionID(uuid.NewString()),
		buf:        make([]byte, samples*2*cfg.Channels),
	}
}

// feed copies pcm into the current chunk buffer, emitting one chunk per
// filled interval.
func (c *chunker) feed(pcm []byte) {
	for len(pcm) > 0 {
		n := copy(c.buf[c.fill:], pcm)
		c.fill += n
		pcm = pcm[n:]

		if c.fill == c.chunkBytes {
			chunk := domain.Chunk{
				Session:    c.session,
				Seq:        c.seq,
				Timestamp:  time.Now(),
				PCM:        c.buf,
				SampleRate: c.sampleRate,
				Channels:   c.channels,
			}
			c.seq++
			c.buf = make([]byte, c.chunkBytes)
			c.fill = 0
			c.sink.Push(chunk)
		}
	}
}

// rotate discards any partial interval and starts a new capture session
// with sequence numbers reset to 0.
func (c *chunker) rotate() domain.CaptureSessionID {
	c.session = domain.CaptureSessionID(uuid.NewString())
	c.seq = 0
	c.fill = 0
	return c.session
}

// downmixStereo averages interleaved stereo s16le frames into mono in
// place, returning the shortened slice.
func downmixStereo(pcm []byte) []byte {
	frames := len(pcm) / 4
	for i := 0; i < frames; i++ {
		left := int16(pcm[i*4]) | int16(pcm[i*4+1])<<8
		right := int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8
		avg := int16((int32(left) + int32(right)) / 2)
		pcm[i*2] = byte(avg)
		pcm[i*2+1] = byte(avg >> 8)
	}
	return pcm[:frames*2]
}

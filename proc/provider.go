package proc

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/leeineian/jill/player"
)

// OggReader splits an Ogg/Opus stream into Opus packets. Header packets
// (OpusHead, OpusTags) are skipped.
type OggReader struct {
	reader    *bufio.Reader
	header    []byte
	segBuf    []byte
	packetBuf bytes.Buffer
	queue     [][]byte
}

func NewOggReader(r io.Reader) *OggReader {
	return &OggReader{
		reader: bufio.NewReaderSize(r, 16384),
		header: make([]byte, 27),
		segBuf: make([]byte, 255),
	}
}

// Next returns the next Opus packet, or io.EOF at the end of the stream.
func (o *OggReader) Next() ([]byte, error) {
	if len(o.queue) > 0 {
		frame := o.queue[0]
		o.queue = o.queue[1:]
		return frame, nil
	}

	for {
		sig, err := o.reader.Peek(4)
		if err != nil {
			return nil, eofOr(err)
		}
		if string(sig) != "OggS" {
			_, _ = o.reader.Discard(1)
			continue
		}
		if _, err := io.ReadFull(o.reader, o.header); err != nil {
			return nil, unexpectedOr(err)
		}

		numSegs := int(o.header[26])
		segTable := o.segBuf[:numSegs]
		if _, err := io.ReadFull(o.reader, segTable); err != nil {
			return nil, unexpectedOr(err)
		}

		for _, segLen := range segTable {
			l := int(segLen)
			if _, err := io.CopyN(&o.packetBuf, o.reader, int64(l)); err != nil {
				return nil, unexpectedOr(err)
			}
			if l == 255 {
				// Packet continues in the next segment.
				continue
			}

			payload := o.packetBuf.Bytes()
			frame := make([]byte, len(payload))
			copy(frame, payload)
			o.packetBuf.Reset()

			if len(frame) >= 8 && (string(frame[:8]) == "OpusHead" || string(frame[:8]) == "OpusTags") {
				continue
			}
			o.queue = append(o.queue, frame)
		}

		if len(o.queue) > 0 {
			frame := o.queue[0]
			o.queue = o.queue[1:]
			return frame, nil
		}
	}
}

func eofOr(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	return err
}

func unexpectedOr(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// TrackProvider feeds one track to the voice connection. It reports the end
// of the track exactly once: nil on a clean end, player.ErrStopped when
// stopped, or the read error.
type TrackProvider struct {
	ogg      *OggReader
	paused   atomic.Bool
	stopped  atomic.Bool
	finished atomic.Bool
	once     sync.Once
	onFinish func(error)
}

func NewTrackProvider(r io.Reader, onFinish func(error)) *TrackProvider {
	return &TrackProvider{ogg: NewOggReader(r), onFinish: onFinish}
}

// ProvideOpusFrame returns the next packet. A paused provider yields silence.
func (p *TrackProvider) ProvideOpusFrame() ([]byte, error) {
	if p.stopped.Load() {
		p.finish(player.ErrStopped)
		return nil, io.EOF
	}
	if p.paused.Load() {
		return nil, nil
	}

	frame, err := p.ogg.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			p.finish(nil)
		} else {
			p.finish(err)
		}
		return nil, io.EOF
	}
	return frame, nil
}

// Close is called by the voice connection when the provider is replaced.
func (p *TrackProvider) Close() {
	p.Stop()
}

func (p *TrackProvider) Stop() {
	p.stopped.Store(true)
	p.finish(player.ErrStopped)
}

func (p *TrackProvider) Pause()  { p.paused.Store(true) }
func (p *TrackProvider) Resume() { p.paused.Store(false) }

func (p *TrackProvider) Paused() bool {
	return p.paused.Load()
}

// Finished reports whether the end of the track has been reported.
func (p *TrackProvider) Finished() bool {
	return p.finished.Load()
}

func (p *TrackProvider) finish(err error) {
	p.once.Do(func() {
		p.finished.Store(true)
		if p.onFinish != nil {
			go p.onFinish(err)
		}
	})
}

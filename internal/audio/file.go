// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE_FORMAT_PCM format tag.
const wavFormatPCM = 1

// FileSource replays a PCM WAV file as if it were an input device. The
// file's own sample rate is the stream rate. When the samples run out the
// stream reports ErrEndOfStream.
type FileSource struct {
	path     string
	realtime bool
}

// NewFileSource returns a source reading path. With realtime set, chunks
// are paced at the file's sample rate instead of delivered as fast as the
// pipeline consumes them.
func NewFileSource(path string, realtime bool) *FileSource {
	return &FileSource{path: path, realtime: realtime}
}

// Name implements Source.
func (s *FileSource) Name() string { return "file" }

// Open implements Source.
func (s *FileSource) Open(cfg StreamConfig, cb Callbacks) (Stream, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrConfigUnsupported, s.path)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		f.Close()
		return nil, fmt.Errorf("%w: WAV format tag %d, want PCM", ErrConfigUnsupported, dec.WavAudioFormat)
	}
	if dec.BitDepth > 32 {
		f.Close()
		return nil, fmt.Errorf("%w: %d-bit samples", ErrConfigUnsupported, dec.BitDepth)
	}

	channels := int(dec.NumChans)
	if channels < 1 || dec.SampleRate == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrConfigUnsupported, channels, dec.SampleRate)
	}
	frames := orDefault(cfg.FramesPerBuffer, 1024)

	return &fileStream{
		file:     f,
		dec:      dec,
		cb:       cb,
		realtime: s.realtime,
		rate:     float64(dec.SampleRate),
		channels: channels,
		bitDepth: int(dec.BitDepth),
		buf: &goaudio.IntBuffer{
			Format:         dec.Format(),
			Data:           make([]int, frames*channels),
			SourceBitDepth: int(dec.BitDepth),
		},
		samples: make([]float32, frames*channels),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

type fileStream struct {
	file     *os.File
	dec      *wav.Decoder
	cb       Callbacks
	realtime bool
	rate     float64
	channels int
	bitDepth int
	buf      *goaudio.IntBuffer
	samples  []float32
	mono     []float32

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	quit      chan struct{}
	done      chan struct{}
}

func (s *fileStream) SampleRate() float64 { return s.rate }

func (s *fileStream) Start() error {
	s.startOnce.Do(func() {
		s.started = true
		go s.run()
	})
	return nil
}

func (s *fileStream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.started {
			<-s.done
		}
		err = s.file.Close()
	})
	return err
}

func (s *fileStream) run() {
	defer close(s.done)

	var ticker *time.Ticker
	if s.realtime {
		ticker = time.NewTicker(ChunkDuration(len(s.buf.Data)/s.channels, s.rate))
		defer ticker.Stop()
	}

	// Integer PCM is signed except for 8-bit, which is offset binary.
	scale := 1 / float32(int64(1)<<(s.bitDepth-1))
	var offset int
	if s.bitDepth == 8 {
		offset = 128
	}

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		n, err := s.dec.PCMBuffer(s.buf)
		if err != nil {
			s.cb.fail(fmt.Errorf("%w: %w", ErrDeviceLost, err))
			return
		}
		if n == 0 {
			s.cb.fail(ErrEndOfStream)
			return
		}

		samples := s.samples[:n]
		for i, v := range s.buf.Data[:n] {
			samples[i] = float32(v-offset) * scale
		}
		if s.channels > 1 {
			s.mono = Downmix(s.mono, samples, s.channels)
			samples = s.mono
		}
		s.cb.deliver(samples)

		if ticker != nil {
			select {
			case <-s.quit:
				return
			case <-ticker.C:
			}
		}
	}
}

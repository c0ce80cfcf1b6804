// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/gen2brain/malgo"
)

func f32Bytes(samples ...float32) []byte {
	b := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(s))
	}
	return b
}

func TestMalgoOnData(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		input    []float32
		frames   uint32
		want     []float32
	}{
		{"Mono", 1, []float32{0.25, -0.5, 1}, 3, []float32{0.25, -0.5, 1}},
		{"Stereo", 2, []float32{1, 0, -1, -0.5}, 2, []float32{0.5, -0.75}},
		{"FrameCountBeyondInput", 1, []float32{0.5}, 8, []float32{0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []float32
			st := &malgoStream{
				channels: tt.channels,
				cb:       Callbacks{Data: func(s []float32) { got = slices.Clone(s) }},
			}
			st.onData(nil, f32Bytes(tt.input...), tt.frames)
			if !slices.Equal(got, tt.want) {
				t.Errorf("delivered %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMalgoOnStop(t *testing.T) {
	var errs []error
	st := &malgoStream{cb: Callbacks{Error: func(err error) { errs = append(errs, err) }}}

	st.onStop()
	if len(errs) != 1 || !errors.Is(errs[0], ErrDeviceLost) {
		t.Fatalf("unexpected stop reported %v, want ErrDeviceLost", errs)
	}

	st.stopping.Store(true)
	st.onStop()
	if len(errs) != 1 {
		t.Errorf("requested stop reported an error: %v", errs[1:])
	}
}

func TestClassifyMalgoError(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{malgo.ErrNoDevice, ErrDeviceUnavailable},
		{malgo.ErrDeviceNotInitialized, ErrDeviceUnavailable},
		{malgo.ErrFormatNotSupported, ErrConfigUnsupported},
		{malgo.ErrInvalidDeviceConfig, ErrConfigUnsupported},
	}

	for _, tt := range tests {
		if got := classifyMalgoError(tt.err); !errors.Is(got, tt.want) || !errors.Is(got, tt.err) {
			t.Errorf("classifyMalgoError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestPlatformBackends(t *testing.T) {
	if got := platformBackends("linux"); len(got) == 0 || got[0] != malgo.BackendPulseaudio {
		t.Errorf("platformBackends(linux) = %v", got)
	}
	if got := platformBackends("darwin"); !slices.Equal(got, []malgo.Backend{malgo.BackendCoreaudio}) {
		t.Errorf("platformBackends(darwin) = %v", got)
	}
	if got := platformBackends("plan9"); got != nil {
		t.Errorf("platformBackends(plan9) = %v, want nil", got)
	}
}

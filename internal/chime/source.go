// Package chime plays a looping cat chirp while an activity burst is in
// progress.
package chime

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"time"
)

// SampleRate of the synthesized clip and the output stream
const SampleRate = 44100

// Synthesize renders one "mrrp": a short falling chirp with a rolled
// amplitude, followed by a gap, as mono float32 samples.
func Synthesize(sampleRate int) []float32 {
	const (
		toneLen = 180 * time.Millisecond
		gapLen  = 70 * time.Millisecond
		fStart  = 720.0
		fEnd    = 430.0
		rollHz  = 28.0
	)

	toneSamples := int(float64(sampleRate) * toneLen.Seconds())
	gapSamples := int(float64(sampleRate) * gapLen.Seconds())
	clip := make([]float32, toneSamples+gapSamples)

	phase := 0.0
	for i := 0; i < toneSamples; i++ {
		t := float64(i) / float64(toneSamples)
		freq := fStart + (fEnd-fStart)*t
		phase += 2 * math.Pi * freq / float64(sampleRate)

		// attack/decay envelope with a purring tremolo on top
		env := math.Sin(math.Pi * t)
		roll := 0.75 + 0.25*math.Sin(2*math.Pi*rollHz*float64(i)/float64(sampleRate))
		clip[i] = float32(env * roll * (0.8*math.Sin(phase) + 0.2*math.Sin(2*phase)))
	}
	return clip
}

// Source is an io.Reader producing float32LE mono samples: the looping clip
// while sounding, silence otherwise. Read is called from the audio
// goroutine; Start, Stop and SetVolume may be called from any goroutine.
type Source struct {
	clip     []float32
	pos      int
	sounding atomic.Bool
	rewind   atomic.Bool
	volume   atomic.Uint64
}

// NewSource creates a silent source over clip
func NewSource(clip []float32, volume float64) *Source {
	s := &Source{clip: clip}
	s.SetVolume(volume)
	return s
}

// Start begins looping the clip from its first sample
func (s *Source) Start() {
	s.rewind.Store(true)
	s.sounding.Store(true)
}

// Stop switches the output to silence
func (s *Source) Stop() {
	s.sounding.Store(false)
}

// Sounding reports whether the clip is being emitted
func (s *Source) Sounding() bool {
	return s.sounding.Load()
}

// SetVolume sets the output gain, clamped to [0, 1]
func (s *Source) SetVolume(v float64) {
	v = math.Max(0, math.Min(1, v))
	s.volume.Store(math.Float64bits(v))
}

// Volume returns the output gain
func (s *Source) Volume() float64 {
	return math.Float64frombits(s.volume.Load())
}

// Read fills p with whole float32 samples
func (s *Source) Read(p []byte) (int, error) {
	n := len(p) / 4
	if s.rewind.Swap(false) {
		s.pos = 0
	}

	sounding := s.sounding.Load() && len(s.clip) > 0
	vol := float32(s.Volume())

	for i := 0; i < n; i++ {
		var sample float32
		if sounding {
			sample = s.clip[s.pos] * vol
			s.pos = (s.pos + 1) % len(s.clip)
		}
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(sample))
	}
	return n * 4, nil
}

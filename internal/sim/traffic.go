package sim

import (
	"math/rand"
	"time"
)

// Bounds of the synthetic bandwidth samples, in Mbps.
const (
	minDownload   = 20.0
	spanDownload  = 80.0
	minUpload     = 5.0
	spanUpload    = 30.0
	DefaultWindow = 20
)

// Chart ceilings: the largest sample the generator can produce.
const (
	MaxDownloadMbps = minDownload + spanDownload
	MaxUploadMbps   = minUpload + spanUpload
)

// Random is the source of traffic samples. *rand.Rand satisfies it.
type Random interface {
	Float64() float64
}

func newRandom() Random {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// TrafficWindow is a fixed-length sliding window of samples, oldest first.
type TrafficWindow struct {
	samples []TrafficSample
	rnd     Random
}

// NewTrafficWindow returns a window of size zero-valued samples.
func NewTrafficWindow(size int, rnd Random) *TrafficWindow {
	if size <= 0 {
		size = DefaultWindow
	}
	if rnd == nil {
		rnd = newRandom()
	}
	w := &TrafficWindow{
		samples: make([]TrafficSample, size),
		rnd:     rnd,
	}
	return w
}

// Sample draws one sample at the given time, appends it and evicts the oldest.
func (w *TrafficWindow) Sample(at time.Time) TrafficSample {
	sample := TrafficSample{
		Time:         at,
		DownloadMbps: minDownload + w.rnd.Float64()*spanDownload,
		UploadMbps:   minUpload + w.rnd.Float64()*spanUpload,
	}
	copy(w.samples, w.samples[1:])
	w.samples[len(w.samples)-1] = sample
	return sample
}

// Reset refills the window with zero-valued samples.
func (w *TrafficWindow) Reset() {
	for i := range w.samples {
		w.samples[i] = TrafficSample{}
	}
}

// Len returns the window size.
func (w *TrafficWindow) Len() int {
	return len(w.samples)
}

// Samples returns a copy of the window, oldest first.
func (w *TrafficWindow) Samples() []TrafficSample {
	out := make([]TrafficSample, len(w.samples))
	copy(out, w.samples)
	return out
}

package ui

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

const (
	bellSampleRate = 48000
	bellFreq       = 880
	bellLength     = 80 * time.Millisecond
	bellMinGap     = 120 * time.Millisecond
)

// bell plays a short tone. Rings closer together than bellMinGap collapse
// into one.
type bell struct {
	player *audio.Player
	last   time.Time
}

func newBell() *bell {
	ctx := audio.CurrentContext()
	if ctx == nil {
		ctx = audio.NewContext(bellSampleRate)
	}
	p := ctx.NewPlayerFromBytes(tone(bellSampleRate, bellFreq, bellLength))
	p.SetVolume(0.4)
	return &bell{player: p}
}

func (b *bell) ring() {
	if b == nil || b.player == nil {
		return
	}
	now := time.Now()
	if now.Sub(b.last) < bellMinGap {
		return
	}
	b.last = now
	_ = b.player.SetPosition(0)
	b.player.Play()
}

func (b *bell) close() {
	if b != nil && b.player != nil {
		_ = b.player.Close()
	}
}

// tone renders a sine wave as 16-bit little-endian stereo with a linear
// fade-out so it ends without a click.
func tone(rate, freq int, d time.Duration) []byte {
	n := int(int64(rate) * int64(d) / int64(time.Second))
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		env := 1 - float64(i)/float64(n)
		v := int16(math.Sin(2*math.Pi*float64(freq)*float64(i)/float64(rate)) * env * 0.5 * math.MaxInt16)
		binary.LittleEndian.PutUint16(out[i*4:], uint16(v))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(v))
	}
	return out
}

package audio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcm(value int16, samples int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(value))
	}
	return buf
}

func TestEnergy(t *testing.T) {
	assert.Equal(t, 0.0, Energy(nil))
	assert.Equal(t, 0.0, Energy([]byte{1}))
	assert.Equal(t, 0.0, Energy(pcm(0, 10)))
	assert.InDelta(t, 0.5, Energy(pcm(16384, 10)), 1e-9)
	assert.InDelta(t, 0.5, Energy(pcm(-16384, 10)), 1e-9)
}

func TestVADTransitions(t *testing.T) {
	v := NewVAD(VADConfig{EnergyThreshold: 0.1, SpeechFrames: 2, SilenceFrames: 3})
	loud, quiet := pcm(16384, 480), pcm(0, 480)

	st := v.Process(loud)
	assert.False(t, st.Speaking)

	st = v.Process(loud)
	assert.True(t, st.Started)
	assert.True(t, st.Speaking)

	st = v.Process(loud)
	assert.False(t, st.Started)

	v.Process(quiet)
	v.Process(quiet)
	st = v.Process(quiet)
	assert.True(t, st.Ended)
	assert.False(t, v.IsSpeaking())

	v.Process(loud)
	v.Process(loud)
	require.True(t, v.IsSpeaking())
	v.Reset()
	assert.False(t, v.IsSpeaking())
}

func TestSelectDevice(t *testing.T) {
	names := []string{"Built-in Microphone", "USB Headset", "Monitor of Speakers"}

	i, err := selectDevice(names, "capture-1")
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	i, err = selectDevice(names, "headset")
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	i, err = selectDevice(names, "MIC")
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	_, err = selectDevice(names, "capture-9")
	assert.Error(t, err)

	_, err = selectDevice(names, "bluetooth")
	assert.Error(t, err)
}

func TestConfigForModelSize(t *testing.T) {
	assert.Equal(t, 50, ConfigForModelSize("40M").SampleBufferSize)
	assert.Equal(t, 150, ConfigForModelSize("128M").SampleBufferSize)
	assert.Equal(t, 300, ConfigForModelSize("1.8G").SampleBufferSize)
	assert.Equal(t, 50, ConfigForModelSize("").SampleBufferSize)
}

func TestFrameDuration(t *testing.T) {
	assert.Equal(t, 30*time.Millisecond, DefaultConfig().FrameDuration())
	assert.Equal(t, time.Duration(0), CaptureConfig{}.FrameDuration())
}

func TestNewMalgoCapturerRejectsBitDepth(t *testing.T) {
	_, err := NewMalgoCapturer(CaptureConfig{BitDepth: 24})
	assert.Error(t, err)

	c, err := NewMalgoCapturer(DefaultConfig())
	require.NoError(t, err)
	assert.False(t, c.IsRunning())
	// Stop before Start closes the channels
	require.NoError(t, c.Stop())
	_, ok := <-c.Samples()
	assert.False(t, ok)
}

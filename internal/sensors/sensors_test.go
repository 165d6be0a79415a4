package sensors

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

type fakeBus struct {
	addrs  []uint16
	writes [][]byte
	regs   map[byte][]byte
	err    error
}

func (b *fakeBus) String() string                    { return "fake-i2c" }
func (b *fakeBus) SetSpeed(f physic.Frequency) error { return nil }

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	if b.err != nil {
		return b.err
	}
	b.addrs = append(b.addrs, addr)
	b.writes = append(b.writes, append([]byte(nil), w...))
	if len(r) > 0 {
		copy(r, b.regs[w[0]])
	}
	return nil
}

func TestMPU6050_InitSequence(t *testing.T) {
	bus := &fakeBus{}
	_, err := NewMPU6050(bus, MPU6050Addr)
	require.NoError(t, err)

	assert.Equal(t, [][]byte{{0x1A, 0x02}, {0x6B, 0x00}}, bus.writes, "configure DLPF then wake")
	assert.Equal(t, []uint16{0x68, 0x68}, bus.addrs)
}

func TestMPU6050_ReadAccel(t *testing.T) {
	bus := &fakeBus{regs: map[byte][]byte{
		// x=256, y=-2, z=16384 (1g at ±2g full scale)
		0x3B: {0x01, 0x00, 0xFF, 0xFE, 0x40, 0x00},
		0x75: {0x68},
	}}
	m, err := NewMPU6050(bus, MPU6050Addr)
	require.NoError(t, err)

	s, err := m.ReadAccel()
	require.NoError(t, err)
	assert.Equal(t, AccelSample{X: 256, Y: -2, Z: 16384}, s)

	id, err := m.WhoAmI()
	require.NoError(t, err)
	assert.Equal(t, byte(0x68), id)
	assert.NoError(t, m.Close())
}

func TestMPU6050_ReadFailureIsUnavailable(t *testing.T) {
	bus := &fakeBus{}
	m, err := NewMPU6050(bus, MPU6050Addr)
	require.NoError(t, err)

	bus.err = errors.New("nack")
	_, err = m.ReadAccel()
	assert.ErrorIs(t, err, ErrSensorUnavailable)
}

func TestMPU6050_InitFailure(t *testing.T) {
	_, err := NewMPU6050(&fakeBus{err: errors.New("no device")}, MPU6050Addr)
	assert.Error(t, err)
}

func TestIIOLight(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in_voltage4_raw")
	require.NoError(t, os.WriteFile(path, []byte("3172\n"), 0o644))

	level, err := IIOLight{Path: path}.ReadLight()
	require.NoError(t, err)
	assert.Equal(t, uint32(3172), level)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	_, err = IIOLight{Path: path}.ReadLight()
	assert.ErrorIs(t, err, ErrSensorUnavailable)

	_, err = IIOLight{Path: filepath.Join(t.TempDir(), "missing")}.ReadLight()
	assert.ErrorIs(t, err, ErrSensorUnavailable)
}

func TestAveraging(t *testing.T) {
	src := NewScriptedLight(Levels(100, 101, 102, 103, 105)...)
	level, err := Averaging{Source: src}.ReadLight()
	require.NoError(t, err)
	// mean 102.2 truncates to 102
	assert.Equal(t, uint32(102), level)
	assert.Equal(t, DefaultLightSamples, src.Reads())

	failing := NewScriptedLight(LightStep{Level: 1}, LightStep{Err: errors.New("adc busy")})
	_, err = Averaging{Source: failing, Samples: 3}.ReadLight()
	assert.ErrorIs(t, err, ErrSensorUnavailable)
}

func TestParseLines(t *testing.T) {
	s, ok := ParseAccelLine("A,12,-40,16400\n")
	require.True(t, ok)
	assert.Equal(t, AccelSample{X: 12, Y: -40, Z: 16400}, s)

	for _, bad := range []string{"", "A,1,2", "L,1,2,3", "A,1,2,99999", "A,x,2,3"} {
		_, ok := ParseAccelLine(bad)
		assert.False(t, ok, "line %q", bad)
	}

	level, ok := ParseLightLine("L,3500")
	require.True(t, ok)
	assert.Equal(t, uint32(3500), level)

	for _, bad := range []string{"L", "L,-1", "A,3500", "L,1,2"} {
		_, ok := ParseLightLine(bad)
		assert.False(t, ok, "line %q", bad)
	}
}

type fakeSubscriber struct {
	ch           chan string
	unsubscribed []string
}

func (f *fakeSubscriber) Subscribe() (string, chan string) { return "sub-1", f.ch }
func (f *fakeSubscriber) Unsubscribe(id string)            { f.unsubscribed = append(f.unsubscribed, id) }

func TestBridgeAccelerometer(t *testing.T) {
	sub := &fakeSubscriber{ch: make(chan string, 4)}
	accel := NewBridgeAccelerometer(sub, 50*time.Millisecond)

	sub.ch <- "L,1200"
	sub.ch <- "noise"
	sub.ch <- "A,1,2,3"

	s, err := accel.ReadAccel()
	require.NoError(t, err)
	assert.Equal(t, AccelSample{X: 1, Y: 2, Z: 3}, s)

	_, err = accel.ReadAccel()
	assert.ErrorIs(t, err, ErrSensorUnavailable, "times out with no line")

	accel.Close()
	assert.Equal(t, []string{"sub-1"}, sub.unsubscribed)
}

func TestBridgeLight(t *testing.T) {
	sub := &fakeSubscriber{ch: make(chan string, 2)}
	light := NewBridgeLight(sub, 50*time.Millisecond)

	sub.ch <- "A,0,0,0"
	sub.ch <- "L,2999"
	level, err := light.ReadLight()
	require.NoError(t, err)
	assert.Equal(t, uint32(2999), level)

	close(sub.ch)
	_, err = light.ReadLight()
	assert.ErrorIs(t, err, ErrSensorUnavailable)
}

func TestScriptedAccelerometer(t *testing.T) {
	src := NewScriptedAccelerometer(append(Vertical(5), AccelStep{Err: errors.New("i2c timeout")})...)

	s, err := src.ReadAccel()
	require.NoError(t, err)
	assert.Equal(t, int16(5), s.Z)

	_, err = src.ReadAccel()
	assert.ErrorIs(t, err, ErrSensorUnavailable)

	_, err = src.ReadAccel()
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Equal(t, 3, src.Reads())
}

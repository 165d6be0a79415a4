package sensors

import (
	"encoding/binary"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// MPU6050 registers used by the node.
const (
	MPU6050Addr = 0x68

	mpuRegConfig    = 0x1A
	mpuRegAccelXOut = 0x3B
	mpuRegPwrMgmt1  = 0x6B
	mpuRegWhoAmI    = 0x75

	// 94Hz digital low-pass: the chip drops high-frequency, low-energy
	// vibration before it reaches the shock filter.
	mpuDLPF94Hz = 0x02
)

// MPU6050 reads raw acceleration from an InvenSense MPU-6050 over I2C.
type MPU6050 struct {
	mu     sync.Mutex
	dev    *i2c.Dev
	closer interface{ Close() error }
}

// NewMPU6050 configures the device on bus: it enables the 94Hz DLPF and
// wakes the chip from its power-on sleep.
func NewMPU6050(bus i2c.Bus, addr uint16) (*MPU6050, error) {
	m := &MPU6050{dev: &i2c.Dev{Bus: bus, Addr: addr}}
	if err := m.dev.Tx([]byte{mpuRegConfig, mpuDLPF94Hz}, nil); err != nil {
		return nil, fmt.Errorf("mpu6050: configure dlpf: %w", err)
	}
	if err := m.dev.Tx([]byte{mpuRegPwrMgmt1, 0x00}, nil); err != nil {
		return nil, fmt.Errorf("mpu6050: wake: %w", err)
	}
	return m, nil
}

// OpenMPU6050 initialises the periph host drivers, opens the named I2C bus
// ("" selects the first one) at 100kHz and configures the device.
func OpenMPU6050(busName string, addr uint16) (*MPU6050, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	if err := bus.SetSpeed(100 * physic.KiloHertz); err != nil {
		bus.Close()
		return nil, fmt.Errorf("set i2c speed: %w", err)
	}
	m, err := NewMPU6050(bus, addr)
	if err != nil {
		bus.Close()
		return nil, err
	}
	m.closer = bus
	return m, nil
}

// WhoAmI returns the identity register; 0x68 on a genuine part.
func (m *MPU6050) WhoAmI() (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := make([]byte, 1)
	if err := m.dev.Tx([]byte{mpuRegWhoAmI}, r); err != nil {
		return 0, unavailable("mpu6050 who_am_i", err)
	}
	return r[0], nil
}

// ReadAccel burst-reads the six big-endian acceleration registers.
func (m *MPU6050) ReadAccel() (AccelSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw := make([]byte, 6)
	if err := m.dev.Tx([]byte{mpuRegAccelXOut}, raw); err != nil {
		return AccelSample{}, unavailable("mpu6050 read accel", err)
	}
	return AccelSample{
		X: int16(binary.BigEndian.Uint16(raw[0:2])),
		Y: int16(binary.BigEndian.Uint16(raw[2:4])),
		Z: int16(binary.BigEndian.Uint16(raw[4:6])),
	}, nil
}

// Close releases the bus when the device was opened with OpenMPU6050.
func (m *MPU6050) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}

package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/banshee-data/citysense/internal/actuator"
	"github.com/banshee-data/citysense/internal/config"
	"github.com/banshee-data/citysense/internal/sensors"
	"github.com/banshee-data/citysense/internal/serialmux"
)

// openSources picks the node's hardware from the flags:
//
//   - -dev replays -fixtures through a mock bridge,
//   - -serial talks to a bridge microcontroller,
//   - otherwise the MPU-6050, IIO light channel and GPIO pins are used directly.
//
// The returned func releases whatever was opened.
func openSources(cfg *config.NodeConfig) (nodeDeps, func(), error) {
	timeout := cfg.GetBridgeTimeout()

	switch {
	case *devMode:
		lines, err := loadFixture(*fixtures)
		if err != nil {
			return nodeDeps{}, nil, err
		}
		mux, _ := serialmux.NewMockSerialMux(lines, cfg.GetSamplePeriod())
		log.Printf("dev mode: replaying %d lines from %s", len(lines), *fixtures)
		return bridgeDeps(mux, timeout)

	case *serialPort != "":
		mux, err := serialmux.NewRealSerialMux(*serialPort, serialmux.PortOptions{BaudRate: *baudRate})
		if err != nil {
			return nodeDeps{}, nil, fmt.Errorf("failed to open sensor bridge: %w", err)
		}
		log.Printf("sensor bridge on %s", *serialPort)
		return bridgeDeps(mux, timeout)
	}

	mpu, err := sensors.OpenMPU6050(*i2cBus, sensors.MPU6050Addr)
	if err != nil {
		return nodeDeps{}, nil, fmt.Errorf("failed to open accelerometer: %w", err)
	}
	gpio, err := actuator.OpenGPIO(*buzzerPin, *ledPin)
	if err != nil {
		mpu.Close()
		return nodeDeps{}, nil, fmt.Errorf("failed to open outputs: %w", err)
	}
	mux := serialmux.NewDisabledSerialMux()
	deps := nodeDeps{
		Accel:   mpu,
		Light:   sensors.Averaging{Source: sensors.IIOLight{Path: *lightPath}, Samples: cfg.GetLightSamples()},
		Outputs: gpio,
		Serial:  mux,
	}
	return deps, func() {
		mux.Close()
		mpu.Close()
	}, nil
}

func bridgeDeps(mux serialmux.SerialMuxInterface, timeout time.Duration) (nodeDeps, func(), error) {
	accel := sensors.NewBridgeAccelerometer(mux, timeout)
	light := sensors.NewBridgeLight(mux, timeout)
	deps := nodeDeps{
		Accel:   accel,
		Light:   light,
		Outputs: actuator.Bridge{Sender: mux},
		Serial:  mux,
	}
	return deps, func() {
		accel.Close()
		light.Close()
		if err := mux.Close(); err != nil {
			log.Printf("failed to close sensor bridge: %v", err)
		}
	}, nil
}

// loadFixture reads bridge lines, skipping blanks and '#' comments.
func loadFixture(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures file: %w", err)
	}
	defer f.Close()

	var lines []string
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s holds no bridge lines", path)
	}
	return lines, nil
}

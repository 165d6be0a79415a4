package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/citysense/internal/actuator"
	"github.com/banshee-data/citysense/internal/api"
	"github.com/banshee-data/citysense/internal/config"
	"github.com/banshee-data/citysense/internal/db"
	"github.com/banshee-data/citysense/internal/envstate"
	"github.com/banshee-data/citysense/internal/events"
	"github.com/banshee-data/citysense/internal/fusion"
	"github.com/banshee-data/citysense/internal/sensors"
	"github.com/banshee-data/citysense/internal/serialmux"
	"github.com/banshee-data/citysense/internal/timeutil"
	"github.com/banshee-data/citysense/internal/tunnel"
)

// nodeDeps is everything runNode needs from the outside world.
type nodeDeps struct {
	Accel   sensors.Accelerometer
	Light   sensors.LightSensor
	Outputs actuator.Outputs
	Serial  serialmux.SerialMuxInterface
	Store   *db.DB
	Clock   timeutil.Clock
}

// runNode runs the serial monitor, both sensing loops and, when ln is not
// nil, the web server. It returns once ctx is done and every routine has
// stopped.
func runNode(ctx context.Context, cfg *config.NodeConfig, deps nodeDeps, ln net.Listener) {
	clock := deps.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	boot := clock.Now()

	var wg sync.WaitGroup

	// run the monitor routine to manage IO on the serial port; bridge sources
	// read nothing until it is running
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := deps.Serial.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("serial monitor routine terminated")
	}()
	if err := deps.Serial.Initialise(); err != nil {
		log.Printf("failed to initialise sensor bridge: %v", err)
	}

	envWriter, envReader := envstate.New(events.Outdoors)
	monitor := tunnel.NewMonitor(cfg.Tunnel(), tunnel.Deps{
		Light:   deps.Light,
		Env:     envWriter,
		Sink:    deps.Store,
		Outputs: deps.Outputs,
		Clock:   clock,
		Boot:    boot,
	})
	// the motion loop tags its first events with this state
	log.Printf("initial environment: %s", monitor.Init().Label())

	engine := fusion.NewEngine(cfg.Fusion(), fusion.Deps{
		Accel:   deps.Accel,
		Env:     envReader,
		Sink:    deps.Store,
		Outputs: deps.Outputs,
		Clock:   clock,
		Boot:    boot,
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
		log.Print("light routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(ctx)
		log.Print("motion routine terminated")
	}()

	if ln != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveHTTP(ctx, ln, deps, envReader)
		}()
	}

	wg.Wait()
}

func serveHTTP(ctx context.Context, ln net.Listener, deps nodeDeps, env envstate.Reader) {
	mux := api.NewServer(deps.Store, env).ServeMux()
	deps.Serial.AttachAdminRoutes(mux)
	deps.Store.AttachAdminRoutes(mux)

	server := &http.Server{
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Start server in a goroutine so it doesn't block
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
}

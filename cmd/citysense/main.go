package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/citysense/internal/config"
	"github.com/banshee-data/citysense/internal/db"
	"github.com/banshee-data/citysense/internal/version"
)

var (
	configPath = flag.String("config", "", "Node tuning file (.json or .yaml); built-in defaults when empty")
	dbPath     = flag.String("db-path", "citysense.db", "Path to the sqlite event log")
	listen     = flag.String("listen", ":8080", "HTTP listen address; empty disables the web server")
	devMode    = flag.Bool("dev", false, "Replay -fixtures through a mock sensor bridge instead of opening hardware")
	fixtures   = flag.String("fixtures", "fixtures/road.txt", "Bridge lines replayed in dev mode")

	serialPort = flag.String("serial", "", "Sensor bridge serial port, e.g. /dev/ttyUSB0; empty reads I2C and IIO directly")
	baudRate   = flag.Int("baud", 0, "Sensor bridge baud rate (default 115200)")

	i2cBus    = flag.String("i2c-bus", "", "I2C bus of the MPU-6050; empty picks the first bus")
	lightPath = flag.String("light-path", "/sys/bus/iio/devices/iio:device0/in_voltage4_raw", "IIO raw ADC attribute of the light sensor")
	buzzerPin = flag.String("buzzer-pin", "GPIO18", "GPIO driving the buzzer; empty disables it")
	ledPin    = flag.String("led-pin", "GPIO23", "GPIO driving the tunnel indicator; empty disables it")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	command := flag.Arg(0)
	var args []string
	if flag.NArg() > 1 {
		args = flag.Args()[1:]
	}

	var err error
	switch command {
	case "":
		err = serve()
	case "migrate":
		err = db.RunMigrateCommand(args, *dbPath, db.MigrateIO{In: os.Stdin, Out: os.Stdout})
	case "dump":
		err = dump(os.Stdout, *dbPath)
	case "plot":
		err = plotCommand(args, *dbPath)
	case "status":
		err = statusCommand(context.Background(), os.Stdout, args, nil)
	case "version":
		fmt.Printf("citysense %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(2)
	}
	if errors.Is(err, db.ErrAborted) {
		fmt.Println("Aborted.")
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func printUsage() {
	fmt.Fprint(flag.CommandLine.Output(), `citysense - roadway shock and tunnel sensing node

Usage: citysense [flags] [command]

Commands:
  (none)          Run the node: motion loop, light loop and web server
  migrate <cmd>   Manage the event log schema (see 'citysense migrate help')
  dump            Print the event log as CSV
  plot [-out f]   Render the shock history to a PNG
  status [-url u] Show the live state of a running node
  version         Print the build version
  help            Show this help

Flags:
`)
	flag.PrintDefaults()
}

func loadConfig() (*config.NodeConfig, error) {
	if *configPath == "" {
		return config.DefaultNodeConfig(), nil
	}
	return config.LoadNodeConfig(*configPath)
}

// serve runs the node until SIGINT or SIGTERM.
func serve() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	deps, closeSources, err := openSources(cfg)
	if err != nil {
		return err
	}
	defer closeSources()

	store, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()
	deps.Store = store
	log.Printf("event log %s, session %s", *dbPath, store.SessionID())

	var ln net.Listener
	if *listen != "" {
		ln, err = net.Listen("tcp", *listen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", *listen, err)
		}
		log.Printf("web server listening on %s", ln.Addr())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runNode(ctx, cfg, deps, ln)
	log.Printf("Graceful shutdown complete")
	return nil
}

// dump writes the legacy CSV export of the log at path.
func dump(w io.Writer, path string) error {
	store, err := db.NewDB(path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()
	return store.WriteCSV(w)
}

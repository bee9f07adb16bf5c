// Command fanetwxd is the FANET weather-bridge daemon: it drives a FANET
// radio module, polls configured weather stations, and broadcasts their
// readings as FANET service/name packets.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fanetwx/fanetwxd/internal/logging"
)

const version = "1.0.0"

// pidPath and sockPath are the single-instance contract's fixed well-known
// locations; matches the PID-file convention of a process meant to run as
// a system daemon rather than per-user.
const (
	pidPath  = "/var/run/fanetwxd.pid"
	sockPath = "/var/run/fanetwxd.sock"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "A FANET weather station bridge daemon.")
	fmt.Fprintln(os.Stderr, "\nFlags:")
	flag.PrintDefaults()
}

func main() {
	os.Exit(run())
}

// run holds everything that needs its deferred cleanup (the syslog hook) to
// actually execute; main only calls os.Exit once, on run's return value,
// since os.Exit skips every pending defer in the calling function.
func run() int {
	var (
		daemon   = flag.Bool("daemon", false, "run as the weather-bridge service")
		quit     = flag.Bool("quit", false, "ask a running instance to shut down")
		loglevel = flag.String("loglevel", "info", "log level: critical|error|warning|notice|info|debug or 0-5")
		cfgPath  = flag.String("config", "", "path to the XML configuration file")
		message  = flag.String("message", "", `inject a transmit command into the running instance: "MFR:DEV text"`)
		inject   = flag.String("inject", "", "inject a raw receive frame into the running instance, for debugging")
		diagAddr = flag.String("diag-addr", "", "bind address for the read-only diagnostics HTTP endpoint (disabled if empty)")
		showVer  = flag.Bool("version", false, "print the version and exit")
	)
	flag.BoolVar(daemon, "d", false, "shorthand for -daemon")
	flag.BoolVar(quit, "q", false, "shorthand for -quit")
	flag.StringVar(loglevel, "l", "info", "shorthand for -loglevel")
	flag.StringVar(cfgPath, "c", "", "shorthand for -config")
	flag.StringVar(message, "m", "", "shorthand for -message")
	flag.StringVar(inject, "i", "", "shorthand for -inject")
	flag.Usage = usage
	flag.Parse()

	if *showVer {
		fmt.Println("fanetwxd " + version)
		return 0
	}

	level, err := logging.ParseLevel(*loglevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	// syslog is only meaningful for the long-running service; one-shot
	// control invocations (--quit/--message/--inject) just print to stderr.
	syslogHook := logging.Setup(logging.Options{Level: level, Syslog: *daemon})
	if syslogHook != nil {
		defer syslogHook.Close()
	}

	switch {
	case *quit:
		return sendQuit()
	case *message != "":
		return sendMessage(*message)
	case *inject != "":
		return sendInject(*inject)
	case *daemon:
		if *cfgPath == "" {
			fmt.Fprintln(os.Stderr, "fanetwxd: -config is required with -daemon")
			return 1
		}
		return runDaemon(*cfgPath, *diagAddr)
	default:
		usage()
		return 1
	}
}

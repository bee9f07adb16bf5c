package main

import (
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fanetwx/fanetwxd/internal/config"
	"github.com/fanetwx/fanetwxd/internal/diag"
	"github.com/fanetwx/fanetwxd/internal/dispatcher"
	"github.com/fanetwx/fanetwxd/internal/fanetaddr"
	"github.com/fanetwx/fanetwxd/internal/gpio"
	"github.com/fanetwx/fanetwxd/internal/logging"
	"github.com/fanetwx/fanetwxd/internal/payload"
	"github.com/fanetwx/fanetwxd/internal/radio"
	"github.com/fanetwx/fanetwxd/internal/singleinstance"
	"github.com/fanetwx/fanetwxd/internal/station"
)

// runDaemon loads cfgPath, wires the radio driver, station manager and
// dispatcher together, and runs the single cooperative event loop until a
// signal or a --quit hand-off stops it. Returns the process exit code.
func runDaemon(cfgPath, diagAddr string) int {
	logger := log.WithField("component", "main")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.WithError(err).Error("failed to load configuration")
		return 1
	}
	watcher := config.Watch(cfgPath)
	if watcher != nil {
		defer watcher.Close()
	}

	lock, err := singleinstance.Acquire(pidPath)
	if err != nil {
		logger.WithError(err).Error("failed to acquire single-instance lock")
		return 1
	}
	defer lock.Release()

	listener, err := singleinstance.Listen(sockPath)
	if err != nil {
		logger.WithError(err).Error("failed to open control socket")
		return 1
	}
	defer listener.Close()

	stations := make([]*station.Station, 0, len(cfg.Stations))
	for _, sc := range cfg.Stations {
		adapter, err := station.NewAdapter(sc)
		if err != nil {
			logger.WithError(err).WithField("station", sc.StationName).Error("failed to build station adapter")
			return 1
		}
		stations = append(stations, station.NewStation(sc, adapter))
	}
	mgr := station.NewManager(stations)

	gpioCtl := gpio.NewController()
	driver := radio.NewDriver(cfg.Radio, gpioCtl, radio.DialSerial)

	disp := dispatcher.New(dispatcher.Config{
		WeatherInterval:   cfg.Fanet.WeatherInterval,
		NamesInterval:     cfg.Fanet.NamesInterval,
		InactivityTimeout: cfg.Fanet.InactivityTimeout,
		WeatherMaxAge:     cfg.Fanet.WeatherMaxAge,
	}, driver, mgr)

	logging.RegisterCriticalShutdown(func() {
		driver.Deinit()
		lock.Release()
		listener.Close()
	})

	var diagSrv *http.Server
	if diagAddr != "" {
		d := diag.New(snapshotter{driver: driver, dispatcher: disp, stations: mgr})
		diagSrv = &http.Server{Addr: diagAddr, Handler: d}
		go func() {
			if err := diagSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Warn("diagnostics endpoint stopped")
			}
		}()
		logger.WithField("addr", diagAddr).Info("diagnostics endpoint listening")
	}

	controlCh := make(chan singleinstance.Command, 4)
	go singleinstance.Serve(listener, func(c singleinstance.Command) { controlCh <- c })

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if err := driver.Init(); err != nil {
		logger.WithError(err).Error("initial radio init failed")
	}

	code := eventLoop(driver, disp, mgr, controlCh, sigCh)

	driver.Deinit()
	if diagSrv != nil {
		diagSrv.Close()
	}
	return code
}

// eventLoop is the system's single cooperative select loop: every
// blocking-I/O goroutine (radio.readLoop, station.Manager.pollLoop,
// singleinstance.Serve) only ever produces data onto a channel here, and
// every state mutation happens on this goroutine.
func eventLoop(driver *radio.Driver, disp *dispatcher.Dispatcher, mgr *station.Manager,
	controlCh <-chan singleinstance.Command, sigCh <-chan os.Signal) int {

	for {
		select {
		case <-driver.TimerC():
			driver.OnTimeout()

		case chunk := <-driver.DataReady():
			driver.OnData(chunk)

		case state := <-driver.StateChanges():
			disp.OnRadioStateChange(state)

		case pkt := <-driver.Received():
			disp.HandleReceive(pkt)

		case <-disp.TickC():
			disp.OnTick(time.Now())

		case result := <-mgr.Results():
			mgr.ApplyResult(result)

		case cmd := <-controlCh:
			if cmd.Kind == "quit" {
				return 0
			}
			handleControl(driver, cmd)

		case <-sigCh:
			log.WithField("component", "main").Info("received shutdown signal")
			return 0
		}
	}
}

// handleControl implements the --message/--inject hand-off contract: a
// second invocation's argv, forwarded verbatim over the control socket.
func handleControl(driver *radio.Driver, cmd singleinstance.Command) {
	logger := log.WithField("component", "main")
	switch cmd.Kind {
	case "message":
		parts := strings.SplitN(cmd.Arg, " ", 2)
		if len(parts) != 2 {
			logger.WithField("arg", cmd.Arg).Warn("malformed --message argument, want \"MFR:DEV text\"")
			return
		}
		addr := fanetaddr.Parse(parts[0])
		if !addr.IsValid() {
			logger.WithField("addr", parts[0]).Warn("malformed --message address")
			return
		}
		if !driver.Send(addr, payload.MessagePayload(parts[1])) {
			logger.Warn("failed to send injected message")
		}
	case "inject":
		driver.InjectMessage(cmd.Arg)
	default:
		logger.WithField("kind", cmd.Kind).Warn("unknown control command")
	}
}

// snapshotter adapts the daemon's live components to diag.Snapshotter.
type snapshotter struct {
	driver     *radio.Driver
	dispatcher *dispatcher.Dispatcher
	stations   *station.Manager
}

func (s snapshotter) Snapshot() diag.Status {
	now := time.Now()
	stations := make([]diag.StationStatus, 0, len(s.stations.Stations()))
	for _, st := range s.stations.Stations() {
		age := -1.0
		if !st.LastUpdate().IsZero() {
			age = now.Sub(st.LastUpdate()).Seconds()
		}
		stations = append(stations, diag.StationStatus{
			ID:         st.StationID(),
			Name:       st.Name(),
			LastUpdate: diag.FormatTime(st.LastUpdate()),
			AgeSeconds: age,
		})
	}
	return diag.Status{
		Radio:             diag.RadioStatus{State: s.driver.State().String()},
		Stations:          stations,
		LastNeighbourSeen: diag.FormatTime(s.dispatcher.LastNeighbourSeen()),
		LastWeatherSent:   diag.FormatTime(s.dispatcher.LastWeatherSent()),
		LastNamesSent:     diag.FormatTime(s.dispatcher.LastNamesSent()),
	}
}

package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/acuitylab/acuity/pkg/config"
	"github.com/acuitylab/acuity/pkg/events"
	"github.com/acuitylab/acuity/pkg/optotype"
)

// sweepSpec is how often idle sessions are looked for.
const sweepSpec = "@every 1m"

// Daemon hosts test sessions over HTTP.
type Daemon struct {
	conf     config.Config
	sessions *Store
	hub      *events.EventHub

	// newGenerator supplies the row generator of each new session. Nil
	// selects a clock-seeded random generator.
	newGenerator func() optotype.Generator
}

// New creates a daemon with no sessions. hub may be nil.
func New(conf config.Config, hub *events.EventHub) *Daemon {
	return &Daemon{
		conf:     conf,
		sessions: NewStore(),
		hub:      hub,
	}
}

func (d *Daemon) generator() optotype.Generator {
	if d.newGenerator == nil {
		return nil
	}
	return d.newGenerator()
}

// Router builds the HTTP API.
func (d *Daemon) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))

	router.GET("/version", getVersion)
	router.GET("/config", d.getConfig)
	router.GET("/ladder", d.getLadder)
	router.GET("/reference-objects", getReferenceObjects)
	router.GET("/events", d.streamEvents)

	router.POST("/sessions", d.createSession)
	router.GET("/sessions", d.listSessions)

	s := router.Group("/sessions/:id", d.loadSession)
	s.GET("", d.getSession)
	s.DELETE("", d.deleteSession)
	s.PUT("/calibration", d.setCalibration)
	s.PUT("/calibration/pixels", d.calibrateFromPixels)
	s.POST("/calibration/save", d.saveCalibration)
	s.PUT("/reference-object", d.setReferenceObject)
	s.PUT("/viewing-distance", d.setViewingDistance)
	s.POST("/start", d.startTest)
	s.POST("/recalibrate", d.recalibrate)
	s.GET("/presentation", d.getPresentation)
	s.POST("/response", d.submitResponse)
	s.POST("/restart", d.restart)
	s.GET("/view", d.getView)
	s.GET("/chart.png", d.getChartPNG)

	return router
}

// Sweep drops sessions idle for longer than the configured TTL.
func (d *Daemon) Sweep(now time.Time) {
	for _, id := range d.sessions.Sweep(now, d.conf.SessionTTL()) {
		logrus.WithField("session", id).Info("removed idle session")
		d.hub.Publish(events.SessionDeleted, events.SessionDeletedEvent{
			ID:     id,
			Reason: "idle",
			Ts:     now.Unix(),
		})
	}
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	gin.SetMode(gin.ReleaseMode)

	conf, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	hub := events.NewEventHub()
	d := New(conf, hub)
	router := d.Router()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if broker := conf.MQTTBroker(); broker != "" {
		bridge, err := events.NewMQTTBridge(hub, broker, conf.MQTTTopicPrefix())
		if err != nil {
			logrus.Errorf("events will not be published to mqtt: %v", err)
		} else {
			go bridge.Run(ctx)
		}
	}

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(sweepSpec, func() { d.Sweep(time.Now()) }); err != nil {
		logrus.Fatalf("failed to schedule session sweeper: %v", err)
	}
	sweeper.Start()

	// A stale socket from an unclean exit would make Listen fail.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("failed to remove stale socket %s: %v", unixSocketPath, err)
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Requests inherit ctx so event streams end when shutting down.
	baseContext := func(net.Listener) context.Context { return ctx }
	servers := []*http.Server{{Handler: router, BaseContext: baseContext}}
	listeners := []net.Listener{l}

	if addr := conf.ListenAddr(); addr != "" {
		tl, err := net.Listen("tcp", addr)
		if err != nil {
			logrus.Fatal(err)
		}
		servers = append(servers, &http.Server{Handler: router, BaseContext: baseContext, ReadHeaderTimeout: 10 * time.Second})
		listeners = append(listeners, tl)
	}

	for i := range servers {
		srv, ln := servers[i], listeners[i]
		go func() {
			logrus.Infof("http server listening on %s", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Fatal(err)
			}
		}()
	}

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	cancel()

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("failed to shutdown http server: %v", err)
		}
	}
	shutdownCancel()

	logrus.Info("stopping session sweeper")
	<-sweeper.Stop().Done()

	logrus.Info("exiting")
	return nil
}

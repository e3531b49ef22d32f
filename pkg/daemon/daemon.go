package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/charlie0129/gazeserver/pkg/broadcast"
	"github.com/charlie0129/gazeserver/pkg/calibration"
	"github.com/charlie0129/gazeserver/pkg/config"
	"github.com/charlie0129/gazeserver/pkg/events"
	"github.com/charlie0129/gazeserver/pkg/tracker"
)

var (
	conf        config.Config
	sseHub      *events.EventHub
	browser     tracker.Browser
	registry    *broadcast.Registry
	broadcaster *broadcast.Broadcaster
	surface     *remoteSurface
	runner      *calibration.Runner
	session     = &trackingSession{}

	// quit is closed when the daemon starts shutting down, ending
	// long-lived streams.
	quit = make(chan struct{})
)

// Options configures Run.
type Options struct {
	ConfigPath string
	// Port overrides the configured port when non-empty. A malformed value
	// falls back to the default port.
	Port string
	// BindAddress overrides the configured bind address when non-empty.
	BindAddress string
	// Trackers are the ids of the simulated trackers to expose. A single
	// tracker is created when empty.
	Trackers []string
}

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/version", getVersion)
	router.GET("/config", getConfig)
	router.PUT("/config/dwell", setDwell)
	router.PUT("/config/tracker", setTracker)
	router.GET("/trackers", getTrackers)
	router.GET("/tracking", getTracking)
	router.POST("/tracking/start", startTracking)
	router.POST("/tracking/stop", stopTracking)
	router.GET("/calibration", getCalibration)
	router.POST("/calibration", runCalibration)
	router.GET("/subscribers", getSubscribers)
	router.GET("/events", streamEvents)
	router.GET("/ws", serveWS)

	return router
}

// setup wires the daemon's components around c and b.
func setup(c config.Config, b tracker.Browser) {
	conf = c
	browser = b
	sseHub = events.NewEventHub()
	registry = broadcast.NewRegistry()
	broadcaster = broadcast.New(registry, broadcast.WithBacklog(c.SendBacklog()))
	surface = newRemoteSurface(sseHub)
	runner = calibration.NewRunner(surface,
		calibration.WithDwell(c.Dwell()),
		calibration.WithObserver(publishTransition),
	)
	session = &trackingSession{}
	quit = make(chan struct{})

	b.OnChanged(func(info tracker.Info, found bool) {
		sseHub.Publish(events.TrackerChanged, events.TrackerChangedEvent{
			TrackerID: info.ID,
			Found:     found,
		})
	})
}

func newSimulatedBrowser(ids []string, sampleRate int) *tracker.MockBrowser {
	if len(ids) == 0 {
		ids = []string{"sim-1"}
	}
	mocks := make([]*tracker.Mock, 0, len(ids))
	for _, id := range ids {
		mocks = append(mocks, tracker.NewMock(id, tracker.WithSampleRate(sampleRate)))
	}
	return tracker.NewMockBrowser(mocks...)
}

// reload re-reads the config file and applies what can change at runtime.
func reload() {
	oldPort := conf.Port()
	if err := conf.Load(); err != nil {
		logrus.Errorf("failed to reload config: %v", err)
		return
	}
	runner.SetDwell(conf.Dwell())
	if conf.Port() != oldPort {
		logrus.WithField("port", conf.Port()).Warn("port changed, restart the daemon to apply")
	}
	logrus.Infof("config reloaded")
}

func Run(opts Options) error {
	c, err := config.NewFile(opts.ConfigPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(c.LogrusFields()).Infof("config loaded")

	b := newSimulatedBrowser(opts.Trackers, c.SampleRateHz())
	setup(c, b)

	port := conf.Port()
	if opts.Port != "" {
		port = config.ParsePort(opts.Port)
	}
	bind := conf.BindAddress()
	if opts.BindAddress != "" {
		bind = opts.BindAddress
	}

	srv := &http.Server{
		Handler:           setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	l, err := net.Listen("tcp", net.JoinHostPort(bind, strconv.Itoa(port)))
	if err != nil {
		return err
	}

	// Handle common process-killing signals, so we can gracefully shut down.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Receive SIGHUP to reload config
	g.Go(func() error {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		defer signal.Stop(sigc)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sigc:
				reload()
			}
		}
	})

	g.Go(func() error {
		if err := config.Watch(ctx, opts.ConfigPath, reload); err != nil {
			logrus.WithError(err).Warn("config file watching disabled")
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logrus.Info("shutting down")
		shutdown(srv)
		return nil
	})

	err = g.Wait()
	logrus.Info("exiting")
	return err
}

func shutdown(srv *http.Server) {
	close(quit)

	if err := session.stop(); err != nil && !errors.Is(err, errNotTracking) {
		logrus.Errorf("failed to stop tracking: %v", err)
	}

	logrus.Info("closing subscribers")
	registry.Range(func(id uint64, sub broadcast.Subscriber) bool {
		registry.Remove(id)
		_ = sub.Close()
		return true
	})
	broadcaster.Close()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	surface.dispatcher.Close()

	if c, ok := browser.(io.Closer); ok {
		logrus.Info("closing trackers")
		if err := c.Close(); err != nil {
			logrus.Errorf("failed to close trackers: %v", err)
		}
	}
}

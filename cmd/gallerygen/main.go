// gallerygen builds photo galleries and their index from a directory of images.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"

	"github.com/tstromberg/gallerygen/pkg/gallery"
	"github.com/tstromberg/gallerygen/pkg/manage"
)

var (
	configPath  = flag.String("config", "", "path to the site configuration (_config.yml)")
	source      = flag.String("source", "", "site source root (overrides config)")
	destination = flag.String("out", "", "site destination root (overrides config)")
	listen      = flag.Bool("listen", false, "serve content via HTTP")
	addr        = flag.String("addr", "localhost:12800", "host:port to bind to in listen mode")
	watchFlag   = flag.Bool("watch", false, "watch the galleries for changes and rebuild")
	schedule    = flag.String("schedule", "", "cron spec for periodic rebuilds, such as @every 1h")
	metricsFile = flag.String("metrics-file", "", "write build metrics to this file in Prometheus text format")
)

// site holds what a rebuild needs. Builds are serialized.
type site struct {
	mu  sync.Mutex
	c   *gallery.Config
	e   gallery.Extractor
	m   *gallery.Metrics
	reg *prometheus.Registry
	srv *manage.Server
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	c, err := gallery.Load(*configPath)
	if err != nil {
		klog.Exitf("config: %v", err)
	}
	if *source != "" {
		c.Source = *source
	}
	if *destination != "" {
		c.Destination = *destination
	}

	reg := prometheus.NewRegistry()
	m := gallery.NewMetrics(reg)

	e, err := gallery.NewExtractor(c.Gallery.Extractor, m)
	if err != nil {
		klog.Exitf("extractor: %v", err)
	}

	longRunning := *watchFlag || *listen || *schedule != ""
	if longRunning {
		e = gallery.NewCachingExtractor(e, 24*time.Hour)
	}
	defer gallery.CloseExtractor(e)

	s := &site{c: c, e: e, m: m, reg: reg}
	x, err := s.rebuild()
	if err != nil {
		klog.Exitf("build failed: %v", err)
	}

	if !longRunning {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listen {
		sc := gallery.NewScanner(c, e, gallery.NewThumbnailCache(c.Gallery.Quality, m))
		s.srv = manage.New(c, x, sc)
		go serve(s.srv, *addr)
	}

	if *schedule != "" {
		cr := cron.New()
		if _, err := cr.AddFunc(*schedule, func() {
			klog.Infof("starting scheduled rebuild")
			if _, err := s.rebuild(); err != nil {
				klog.Errorf("scheduled rebuild failed: %v", err)
			}
		}); err != nil {
			klog.Exitf("schedule %q: %v", *schedule, err)
		}
		cr.Start()
		defer cr.Stop()
		klog.Infof("rebuilding on schedule %q", *schedule)
	}

	if *watchFlag {
		go func() {
			if err := s.watch(ctx, x); err != nil {
				klog.Errorf("watch: %v", err)
			}
		}()
	}

	<-ctx.Done()
	klog.Infof("shutting down")
}

// rebuild runs a full build and publishes it to the preview server, if any.
func (s *site) rebuild() (*gallery.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	x := gallery.Collect(s.c, s.e, s.m)
	if err := gallery.Render(s.c, x); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	if s.srv != nil {
		s.srv.Update(x)
	}

	if *metricsFile != "" {
		if err := prometheus.WriteToTextfile(*metricsFile, s.reg); err != nil {
			klog.Errorf("write metrics: %v", err)
		}
	}

	summarize(x)
	return x, nil
}

func summarize(x *gallery.Index) {
	var st gallery.ThumbStats
	images := 0
	for _, g := range x.All {
		images += len(g.Images)
		st.Generated += g.Thumbs.Generated
		st.Cached += g.Thumbs.Cached
		st.Failed += g.Thumbs.Failed
	}

	color.New(color.FgGreen).Printf("%d galleries (%d hidden), %d images: ", len(x.All), len(x.All)-len(x.Galleries), images)
	fmt.Printf("%d thumbnails generated, %d cached", st.Generated, st.Cached)
	if st.Failed > 0 {
		color.New(color.FgRed).Printf(", %d failed", st.Failed)
	}
	fmt.Println()
}

// serve serves the built site via HTTP
func serve(srv *manage.Server, addr string) {
	klog.Infof("Listening on %s...", addr)
	if err := http.ListenAndServe(addr, srv.Router()); err != nil {
		klog.Exitf("listen failed: %v", err)
	}
}

// watch rebuilds whenever a gallery directory changes.
func (s *site) watch(ctx context.Context, x *gallery.Index) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer w.Close()

	dirs := []string{s.c.GalleriesDir()}
	for _, g := range x.All {
		dirs = append(dirs, filepath.Join(s.c.Source, g.RelDir))
	}
	slices.Sort(dirs)
	dirs = slices.Compact(dirs)

	klog.Infof("watching %d dirs ...", len(dirs))
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			klog.Infof("event: %s", event)
			nx, err := s.rebuild()
			if err != nil {
				klog.Errorf("rebuild failed: %v", err)
				continue
			}
			// new galleries need watching too
			for _, g := range nx.All {
				d := filepath.Join(s.c.Source, g.RelDir)
				if !slices.Contains(w.WatchList(), d) {
					if err := w.Add(d); err != nil {
						klog.Warningf("watch %s: %v", d, err)
					}
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			klog.Errorf("watch error: %v", err)
		}
	}
}

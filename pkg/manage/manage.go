// Package manage provides HTTP handlers for previewing a built gallery site.
package manage

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/tstromberg/gallerygen/pkg/gallery"
	"k8s.io/klog/v2"
)

// Server serves the latest build and the files it wrote.
type Server struct {
	c  *gallery.Config
	sc *gallery.Scanner

	mu sync.RWMutex
	x  *gallery.Index
}

// New creates a new server. sc lists gallery images straight from the source tree.
func New(c *gallery.Config, x *gallery.Index, sc *gallery.Scanner) *Server {
	return &Server{c: c, sc: sc, x: x}
}

// Update swaps in a fresh build.
func (s *Server) Update(x *gallery.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.x = x
}

func (s *Server) index() *gallery.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.x
}

// Router returns the routes for the server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/index.json", s.IndexHandler()).Methods(http.MethodGet)
	r.HandleFunc("/api/galleries/{name}/images.json", s.ImagesHandler()).Methods(http.MethodGet)
	r.HandleFunc("/api/galleries/{name}.json", s.GalleryHandler()).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.c.Destination)))
	return r
}

// IndexHandler serves the index view model. Hidden galleries are not listed.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		x := s.index()
		if x == nil {
			http.Error(w, "no build yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, x.ViewModel())
	}
}

// GalleryHandler serves a single gallery view model by directory name.
func (s *Server) GalleryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		x := s.index()
		if x == nil {
			http.Error(w, "no build yet", http.StatusServiceUnavailable)
			return
		}

		g := x.Gallery(name)
		if g == nil {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, g.ViewModel())
	}
}

// ImagesHandler lists a gallery's images as found in the source tree, without
// waiting for a build. An unknown gallery yields an empty list.
func (s *Server) ImagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		if strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}

		is := s.sc.Images(name)
		vs := make([]gallery.ImageView, 0, len(is))
		for _, i := range is {
			vs = append(vs, i.ViewModel())
		}
		writeJSON(w, vs)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.Errorf("encode: %v", err)
	}
}

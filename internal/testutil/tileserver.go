package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// TileServer is a fake tile endpoint backed by httptest.
//
// Zooms listed in BlankZooms answer with a black placeholder tile. Keys in
// Failing ("z/x/y") answer 503 on every request. Everything else answers with
// a gradient tile seeded by its coordinate.
type TileServer struct {
	*httptest.Server

	mu         sync.Mutex
	blankZooms map[int]bool
	failing    map[string]bool
	blankTiles map[string]bool
	requests   map[string]int
	tileSize   int
}

// NewTileServer starts a fake tile server. It is closed when the test ends.
func NewTileServer(t testing.TB) *TileServer {
	t.Helper()
	s := &TileServer{
		blankZooms: make(map[int]bool),
		failing:    make(map[string]bool),
		blankTiles: make(map[string]bool),
		requests:   make(map[string]int),
		tileSize:   512,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.serve(t, w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// BaseURL returns a tile base URL whose fixed query already has parameters.
func (s *TileServer) BaseURL() string {
	return s.URL + "/cbk?output=tile"
}

// SetBlankZoom makes every tile at zoom a blank placeholder.
func (s *TileServer) SetBlankZoom(zoom int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blankZooms[zoom] = true
}

// SetBlankTile makes a single tile a blank placeholder.
func (s *TileServer) SetBlankTile(zoom, x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blankTiles[Key(zoom, x, y)] = true
}

// SetFailing makes a tile answer 503 on every request.
func (s *TileServer) SetFailing(zoom, x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[Key(zoom, x, y)] = true
}

// SetTileSize changes the edge length of served tiles.
func (s *TileServer) SetTileSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tileSize = size
}

// Requests returns how often a tile was requested.
func (s *TileServer) Requests(zoom, x, y int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[Key(zoom, x, y)]
}

// TotalRequests returns the number of tile requests served.
func (s *TileServer) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.requests {
		n += c
	}
	return n
}

// Key formats a tile coordinate the way the server tracks it.
func Key(zoom, x, y int) string {
	return fmt.Sprintf("%d/%d/%d", zoom, x, y)
}

func (s *TileServer) serve(t testing.TB, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	zoom, _ := strconv.Atoi(q.Get("zoom"))
	x, _ := strconv.Atoi(q.Get("x"))
	y, _ := strconv.Atoi(q.Get("y"))
	key := Key(zoom, x, y)

	s.mu.Lock()
	s.requests[key]++
	failing := s.failing[key]
	blank := s.blankZooms[zoom] || s.blankTiles[key]
	size := s.tileSize
	s.mu.Unlock()

	if failing {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	var body []byte
	if blank {
		body = BlankJPEG(t, size, size)
	} else {
		body = GradientJPEG(t, size, size, uint8(zoom*31+x*7+y*3+1))
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(body)
}

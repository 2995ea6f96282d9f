package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	domain "github.com/andriy-shtumpf/todo-test/internal/domain/errors"
	"golang.org/x/sync/errgroup"
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

const defaultGeocodeURL = "https://nominatim.openstreetmap.org/search"

// Geocoder resolves free-text addresses to coordinates for the map
// view. Results are memoized by exact address string and never evicted;
// the process lifetime bounds the cache.
type Geocoder struct {
	endpoint string
	httpc    *http.Client

	mu    sync.Mutex
	cache map[string]Coordinates
}

func NewGeocoder() *Geocoder {
	return NewGeocoderWithEndpoint(defaultGeocodeURL)
}

func NewGeocoderWithEndpoint(endpoint string) *Geocoder {
	return &Geocoder{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		cache:    make(map[string]Coordinates),
	}
}

// Lookup returns the coordinates for an address, or nil when the
// address is blank or unknown to the provider. Misses and failures are
// not cached.
func (g *Geocoder) Lookup(ctx context.Context, address string) (*Coordinates, error) {
	if strings.TrimSpace(address) == "" {
		return nil, nil
	}

	g.mu.Lock()
	if coords, ok := g.cache[address]; ok {
		g.mu.Unlock()
		return &coords, nil
	}
	g.mu.Unlock()

	lookupURL := g.endpoint + "?q=" + url.QueryEscape(address) + "&format=json&limit=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: geocoding endpoint returned %d", domain.ErrUpstream, resp.StatusCode)
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad latitude %q", domain.ErrUpstream, results[0].Lat)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad longitude %q", domain.ErrUpstream, results[0].Lon)
	}

	coords := Coordinates{Latitude: lat, Longitude: lon}
	g.mu.Lock()
	g.cache[address] = coords
	g.mu.Unlock()

	return &coords, nil
}

// LookupAll geocodes the unique addresses concurrently. Failed lookups
// are recorded as absent rather than failing the batch.
func (g *Geocoder) LookupAll(ctx context.Context, addresses []string) map[string]*Coordinates {
	unique := make([]string, 0, len(addresses))
	seen := make(map[string]bool, len(addresses))
	for _, address := range addresses {
		if !seen[address] {
			seen[address] = true
			unique = append(unique, address)
		}
	}

	results := make(map[string]*Coordinates, len(unique))
	var mu sync.Mutex

	grp, ctx := errgroup.WithContext(ctx)
	for _, address := range unique {
		grp.Go(func() error {
			coords, err := g.Lookup(ctx, address)
			if err != nil {
				coords = nil
			}
			mu.Lock()
			results[address] = coords
			mu.Unlock()
			return nil
		})
	}
	_ = grp.Wait()

	return results
}

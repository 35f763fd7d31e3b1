// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

// Package wifi implements a low-accuracy location sample source that resolves nearby
// wifi access points against the BeaconDB geolocate API.
package wifi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/voyago/geotrack/internal/geo"
	httpc "github.com/voyago/geotrack/internal/http"
	"github.com/voyago/geotrack/internal/source"
)

const (
	apiEndpoint   = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout = time.Second * 5
	wifiScanTime  = time.Minute * 2
	watchPeriod   = time.Minute * 2
)

// Source resolves positions from nearby wifi access points.
type Source struct {
	http     *httpc.Client
	wlan     *wifi.Client
	locateFn func(ctx context.Context) (geo.Sample, error)

	apLock sync.RWMutex
	aps    []WirelessNetwork

	mu         sync.Mutex
	cached     geo.Sample
	haveCached bool
}

// APIResult is the geolocate API response.
type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

// WirelessNetwork describes a single observed access point in the API request.
type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

// New returns a new wifi positioning Source. It fails when no wifi capability
// exists on the platform.
func New(http *httpc.Client) (*Source, error) {
	if http == nil {
		return nil, fmt.Errorf("http client is required")
	}
	wlan, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", source.ErrUnsupported, err)
	}

	src := &Source{
		http: http,
		wlan: wlan,
	}
	src.locateFn = src.locate
	return src, nil
}

// Name returns the source name.
func (s *Source) Name() string {
	return "wifi"
}

// Available reports whether at least one wifi station interface exists.
func (s *Source) Available() bool {
	if s.wlan == nil {
		return false
	}
	ifaces, err := s.wlan.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Type == wifi.InterfaceTypeStation {
			return true
		}
	}
	return false
}

// Current performs a one-shot position lookup. A cached fix no older than
// opts.MaximumAge is served without querying the API.
func (s *Source) Current(ctx context.Context, opts source.Options) (geo.Sample, error) {
	if opts.MaximumAge > 0 {
		s.mu.Lock()
		if s.haveCached && s.cached.Age(time.Now()) <= opts.MaximumAge {
			cached := s.cached
			s.mu.Unlock()
			return cached, nil
		}
		s.mu.Unlock()
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if s.wlan != nil {
		if list, err := s.wifiAccessPoints(); err == nil && list != nil {
			s.apLock.Lock()
			s.aps = list
			s.apLock.Unlock()
		}
	}

	sample, err := s.locateFn(ctx)
	if err != nil {
		return geo.Sample{}, err
	}

	s.mu.Lock()
	s.cached = sample
	s.haveCached = true
	s.mu.Unlock()

	return sample, nil
}

// Watch periodically resolves the position and streams the readings. The wifi
// neighbourhood is rescanned in the background.
func (s *Source) Watch(ctx context.Context, opts source.Options) <-chan source.Update {
	out := make(chan source.Update)
	go s.monitorWifiAccessPoints(ctx)
	go func() {
		defer close(out)
		firstRun := true

		for {
			if !firstRun {
				select {
				case <-ctx.Done():
					return
				case <-time.After(watchPeriod):
				}
			}
			firstRun = false

			sample, err := s.locateFn(ctx)
			if err != nil {
				select {
				case <-ctx.Done():
					return
				case out <- source.Update{Err: err}:
				}
				continue
			}

			s.mu.Lock()
			s.cached = sample
			s.haveCached = true
			s.mu.Unlock()

			select {
			case <-ctx.Done():
				return
			case out <- source.Update{Sample: sample}:
			}
		}
	}()
	return out
}

func (s *Source) monitorWifiAccessPoints(ctx context.Context) {
	if s.wlan == nil {
		return
	}
	firstRun := true
	for {
		if !firstRun {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wifiScanTime):
			}
		}
		firstRun = false

		list, err := s.wifiAccessPoints()
		if err != nil {
			continue
		}
		s.apLock.Lock()
		s.aps = list
		s.apLock.Unlock()
	}
}

func (s *Source) wifiAccessPoints() ([]WirelessNetwork, error) {
	var checkIfaces []*wifi.Interface
	var list []WirelessNetwork

	ifaces, err := s.wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		checkIfaces = append(checkIfaces, iface)
	}
	if len(checkIfaces) == 0 {
		return nil, nil
	}

	for _, iface := range checkIfaces {
		aps, err := s.wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}

	return list, nil
}

func (s *Source) locate(ctx context.Context) (geo.Sample, error) {
	s.apLock.RLock()
	wifiList := s.aps
	s.apLock.RUnlock()

	type request struct {
		ConsiderIP   bool              `json:"considerIp"`
		Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
	}
	req := request{
		ConsiderIP:   true,
		Accesspoints: wifiList,
	}
	bodyBuffer := bytes.NewBuffer(nil)
	if err := json.NewEncoder(bodyBuffer).Encode(req); err != nil {
		return geo.Sample{}, source.NewError(source.CodeUnknown,
			fmt.Errorf("failed to encode wifi list to JSON: %w", err))
	}

	ctxHTTP, cancelHTTP := context.WithTimeout(ctx, lookupTimeout)
	defer cancelHTTP()
	result := new(APIResult)
	if _, err := s.http.Post(ctxHTTP, apiEndpoint, result, bodyBuffer,
		map[string]string{"Content-Type": "application/json"}); err != nil {
		code := source.CodePositionUnavailable
		if source.CodeOf(err) == source.CodeTimeout {
			code = source.CodeTimeout
		}
		return geo.Sample{}, source.NewError(code,
			fmt.Errorf("failed to get geolocation data from API: %w", err))
	}

	return geo.Sample{
		Latitude:  result.Location.Latitude,
		Longitude: result.Location.Longitude,
		Accuracy:  result.Accuracy,
		Timestamp: time.Now(),
	}, nil
}

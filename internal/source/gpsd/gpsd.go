// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

// Package gpsd implements the gpsd-backed location sample source. One-shot requests
// speak the gpsd wire protocol directly, the continuous watch uses the go-gpsd
// streaming client.
package gpsd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/voyago/geotrack/internal/geo"
	"github.com/voyago/geotrack/internal/source"
)

const (
	fallbackAccuracy3DFix = 10  // ~10 m typical consumer GPS in open sky
	fallbackAccuracy2DFix = 25  // worse than 3D, but still accurate enough
	fallbackAccuracyNoFix = 1e6 // effectively unusable
	defaultTimeout        = time.Second * 10
	probeTimeout          = time.Millisecond * 500
	reconnectDelay        = time.Second * 5
)

// Source acquires location samples from a gpsd daemon.
type Source struct {
	Addr string

	mu         sync.Mutex
	cached     geo.Sample
	haveCached bool
}

// tpvResponse matches the subset of gpsd's TPV report we care about.
type tpvResponse struct {
	Class string    `json:"class"`
	Mode  int       `json:"mode"`
	Time  time.Time `json:"time"`
	Lat   float64   `json:"lat"`
	Lon   float64   `json:"lon"`
	Alt   float64   `json:"alt"`
	Track float64   `json:"track"`
	Speed float64   `json:"speed"`
	Epx   float64   `json:"epx"`
	Epy   float64   `json:"epy"`
	Eph   float64   `json:"eph"`
	Epv   float64   `json:"epv"`
}

// New constructs a new Source for the given gpsd host and port.
func New(host, port string) *Source {
	return &Source{
		Addr: net.JoinHostPort(host, port),
	}
}

// Name returns the source name.
func (s *Source) Name() string {
	return "gpsd"
}

// Available probes whether a gpsd daemon answers on the configured address.
func (s *Source) Available() bool {
	conn, err := net.DialTimeout("tcp", s.Addr, probeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Current performs a one-shot position request against gpsd. A cached fix no older
// than opts.MaximumAge is served without touching the daemon.
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

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sample, err := s.poll(ctx)
	if err != nil {
		return geo.Sample{}, err
	}

	s.mu.Lock()
	s.cached = sample
	s.haveCached = true
	s.mu.Unlock()

	return sample, nil
}

// poll connects to gpsd, requests a WATCH and returns the first usable TPV entry.
// The connection is closed before returning.
func (s *Source) poll(ctx context.Context) (geo.Sample, error) {
	var zero geo.Sample

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", s.Addr)
	if err != nil {
		return zero, source.NewError(source.CodePositionUnavailable, fmt.Errorf("failed to dial gpsd: %w", err))
	}
	defer func() {
		_ = conn.Close()
	}()

	// Respect the context deadline if present, otherwise we add a safety net so we
	// don't hang forever if ctx has no deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(defaultTimeout))
	}

	if _, err = fmt.Fprint(conn, `?WATCH={"enable":true,"json":true}`+"\n"); err != nil {
		return zero, source.NewError(source.CodePositionUnavailable, fmt.Errorf("failed to write WATCH request: %w", err))
	}

	// Wait for a usable TPV response or timeout.
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var resp tpvResponse

		select {
		case <-ctx.Done():
			return zero, source.NewError(source.CodeTimeout, ctx.Err())
		default:
		}

		line := scanner.Bytes()
		if err = json.Unmarshal(line, &resp); err != nil {
			continue
		}
		if resp.Class != "TPV" || resp.Mode < 2 {
			continue
		}

		return sampleFromTPV(resp), nil
	}

	if err = scanner.Err(); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return zero, source.NewError(source.CodeTimeout, err)
		}
		return zero, source.NewError(source.CodePositionUnavailable, fmt.Errorf("failed to scan gpsd response: %w", err))
	}

	return zero, source.NewError(source.CodePositionUnavailable, errors.New("no TPV response received from gpsd"))
}

// Watch opens a continuous TPV subscription against gpsd. Connection failures are
// surfaced as updates and followed by a reconnect attempt.
func (s *Source) Watch(ctx context.Context, opts source.Options) <-chan source.Update {
	out := make(chan source.Update)

	go func() {
		defer close(out)

		for {
			// Exit if the caller is done
			select {
			case <-ctx.Done():
				return
			default:
			}

			session, err := gpsd.Dial(s.Addr)
			if err != nil {
				werr := source.NewError(source.CodePositionUnavailable,
					fmt.Errorf("failed to connect to gpsd at %q: %w", s.Addr, err))
				select {
				case <-ctx.Done():
					return
				case out <- source.Update{Err: werr}:
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(reconnectDelay):
					continue
				}
			}

			// Install TPV filter: this gets called for every TPV report
			session.AddFilter("TPV", func(r interface{}) {
				tpv, ok := r.(*gpsd.TPVReport)
				if !ok {
					return
				}

				// Need at least a 2D fix
				if tpv.Mode < gpsd.Mode2D {
					return
				}

				sample := sampleFromReport(tpv)
				s.mu.Lock()
				s.cached = sample
				s.haveCached = true
				s.mu.Unlock()

				select {
				case <-ctx.Done():
					// Caller is done; just stop sending.
					return
				case out <- source.Update{Sample: sample}:
				}
			})

			// Watch() returns a channel that closes when the watch ends
			// (e.g. connection lost).
			done := session.Watch()

			select {
			case <-ctx.Done():
				return
			case <-done:
				// gpsd connection ended; reconnect after a short delay
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()

	return out
}

func sampleFromTPV(tpv tpvResponse) geo.Sample {
	timestamp := tpv.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	sample := geo.Sample{
		Latitude:  tpv.Lat,
		Longitude: tpv.Lon,
		Accuracy:  horizontalAccuracyMeters(tpv.Eph, tpv.Epx, tpv.Epy, tpv.Mode),
		Timestamp: timestamp,
	}
	if tpv.Mode >= 3 {
		sample.Altitude = geo.Float(tpv.Alt)
		if tpv.Epv > 0 {
			sample.AltitudeAccuracy = geo.Float(tpv.Epv)
		}
	}
	if tpv.Track > 0 {
		sample.Heading = geo.Float(tpv.Track)
	}
	if tpv.Speed > 0 {
		sample.Speed = geo.Float(tpv.Speed)
	}
	return sample
}

func sampleFromReport(tpv *gpsd.TPVReport) geo.Sample {
	timestamp := tpv.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	sample := geo.Sample{
		Latitude:  tpv.Lat,
		Longitude: tpv.Lon,
		Accuracy:  horizontalAccuracyMeters(0, tpv.Epx, tpv.Epy, int(tpv.Mode)),
		Timestamp: timestamp,
	}
	if tpv.Mode >= gpsd.Mode3D {
		sample.Altitude = geo.Float(tpv.Alt)
		if tpv.Epv > 0 {
			sample.AltitudeAccuracy = geo.Float(tpv.Epv)
		}
	}
	if tpv.Track > 0 {
		sample.Heading = geo.Float(tpv.Track)
	}
	if tpv.Speed > 0 {
		sample.Speed = geo.Float(tpv.Speed)
	}
	return sample
}

func horizontalAccuracyMeters(eph, epx, epy float64, mode int) float64 {
	switch {
	case eph > 0:
		return eph
	case epx > 0 && epy > 0:
		// sqrt(epx² + epy²)
		return math.Hypot(epx, epy)
	default:
		return horizontalAccuracyFallback(mode)
	}
}

func horizontalAccuracyFallback(mode int) float64 {
	switch mode {
	case 3:
		return fallbackAccuracy3DFix
	case 2:
		return fallbackAccuracy2DFix
	default:
		return fallbackAccuracyNoFix
	}
}

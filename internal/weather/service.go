package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	appLog "dashcal/internal/log"
)

// ErrAlreadyRefined is returned by Refine after the one allowed refinement.
var ErrAlreadyRefined = errors.New("weather already refined for this session")

// Service owns the dashboard's weather snapshot. The snapshot starts at a
// seeded default and may be refined exactly once.
type Service struct {
	mu       sync.RWMutex
	snap     Snapshot
	refined  bool
	provider Provider
}

// NewService seeds the snapshot. provider may be nil, in which case a
// refinement only updates the location string.
func NewService(seed Snapshot, provider Provider) *Service {
	return &Service{
		snap:     seed,
		provider: provider,
	}
}

// Current returns the current snapshot.
func (s *Service) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Refined reports whether the one-shot refinement has been consumed.
func (s *Service) Refined() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refined
}

// Refine applies a location report. The first call wins; every later call
// returns ErrAlreadyRefined without touching the snapshot. Provider failures
// are logged and absorbed: the coordinate-derived location still applies.
func (s *Service) Refine(ctx context.Context, at Coordinates) (Snapshot, error) {
	s.mu.Lock()
	if s.refined {
		snap := s.snap
		s.mu.Unlock()
		return snap, ErrAlreadyRefined
	}
	s.refined = true
	s.mu.Unlock()

	var reading *Reading
	if s.provider != nil {
		r, err := s.provider.Fetch(ctx, at)
		if err != nil {
			appLog.Error("weather provider fetch failed; keeping default conditions", err, "provider", s.provider.Name())
		} else {
			reading = &r
		}
	}

	s.mu.Lock()
	s.snap.Location = LocationLabel(at)
	if reading != nil {
		s.snap.Temp = math.Round(reading.Temp)
		s.snap.High = math.Round(reading.High)
		s.snap.Low = math.Round(reading.Low)
		s.snap.Humidity = math.Round(reading.Humidity)
		s.snap.WindSpeed = math.Round(reading.WindSpeed)
		if reading.Condition != "" {
			s.snap.Condition = reading.Condition
		}
	}
	snap := s.snap
	s.mu.Unlock()

	appLog.Info("weather refined", "location", snap.Location, "condition", snap.Condition, "provider_data", reading != nil)
	return snap, nil
}

// LocationLabel renders coordinates as the dashboard's location string.
func LocationLabel(at Coordinates) string {
	return fmt.Sprintf("Lat: %.2f, Lon: %.2f", at.Latitude, at.Longitude)
}

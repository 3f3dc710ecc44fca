package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dancelink/platform/internal/app/domain/event"
	"github.com/dancelink/platform/internal/app/domain/profile"
	"github.com/dancelink/platform/internal/app/storage"
	"github.com/dancelink/platform/internal/session"
	"github.com/dancelink/platform/supabase/client"
)

// Seed is the demo data set.
type Seed struct {
	Organizers []SeedOrganizer `yaml:"organizers"`
	Dancers    []SeedDancer    `yaml:"dancers"`
}

type SeedAccount struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type SeedOrganizer struct {
	SeedAccount `yaml:",inline"`
	Events      []SeedEvent `yaml:"events"`
}

type SeedEvent struct {
	Name             string `yaml:"name"`
	DanceStyle       string `yaml:"dance_style"`
	GenderPreference string `yaml:"gender_preference"`
}

type SeedDancer struct {
	SeedAccount `yaml:",inline"`
	DanceStyle  string `yaml:"dance_style"`
	Gender      string `yaml:"gender"`
}

// Summary counts what a run wrote.
type Summary struct {
	Organizers int
	Events     int
	Dancers    int
}

func parseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	for _, o := range s.Organizers {
		if o.Email == "" || o.Password == "" {
			return nil, fmt.Errorf("organizer %q needs email and password", o.Name)
		}
	}
	for _, d := range s.Dancers {
		if d.Email == "" || d.Password == "" {
			return nil, fmt.Errorf("dancer %q needs email and password", d.Name)
		}
	}
	return &s, nil
}

type authenticator interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*client.AuthResponse, error)
	SignIn(ctx context.Context, email, password string) (*client.AuthResponse, error)
}

// seeder writes rows with a service-role store, which bypasses row-level
// security.
type seeder struct {
	auth  authenticator
	store storage.Store
}

func (s *seeder) Run(ctx context.Context, seed *Seed) (Summary, error) {
	var sum Summary

	for _, o := range seed.Organizers {
		id, err := s.account(ctx, o.SeedAccount, session.RoleOrganizer)
		if err != nil {
			return sum, err
		}
		if _, err := s.store.UpsertOrganizer(ctx, event.Organizer{ID: id, Name: o.Name}); err != nil {
			return sum, fmt.Errorf("organizer %s: %w", o.Email, err)
		}
		sum.Organizers++

		existing, err := s.store.ListEventsByOrganizer(ctx, id)
		if err != nil {
			return sum, fmt.Errorf("list events of %s: %w", o.Email, err)
		}
		names := make(map[string]bool, len(existing))
		for _, ev := range existing {
			names[ev.Name] = true
		}
		for _, ev := range o.Events {
			if names[ev.Name] {
				continue
			}
			if _, err := s.store.CreateEvent(ctx, event.Event{
				Name:             ev.Name,
				DanceStyle:       ev.DanceStyle,
				GenderPreference: ev.GenderPreference,
				OrganizerID:      id,
			}); err != nil {
				return sum, fmt.Errorf("event %s: %w", ev.Name, err)
			}
			sum.Events++
		}
	}

	for _, d := range seed.Dancers {
		id, err := s.account(ctx, d.SeedAccount, session.RoleDancer)
		if err != nil {
			return sum, err
		}
		_, err = s.store.GetProfile(ctx, id)
		switch {
		case err == nil:
			continue
		case !storageNotFound(err):
			return sum, fmt.Errorf("profile %s: %w", d.Email, err)
		}
		if _, err := s.store.CreateProfile(ctx, profile.Profile{
			ID:         id,
			Name:       d.Name,
			Email:      d.Email,
			DanceStyle: d.DanceStyle,
			Gender:     d.Gender,
		}); err != nil {
			return sum, fmt.Errorf("profile %s: %w", d.Email, err)
		}
		sum.Dancers++
	}
	return sum, nil
}

// account signs the user up, or signs in when the address is taken, then
// records the role.
func (s *seeder) account(ctx context.Context, acc SeedAccount, role string) (string, error) {
	resp, err := s.auth.SignUp(ctx, acc.Email, acc.Password, map[string]any{"role": role, "name": acc.Name})
	if err != nil || resp.User == nil || resp.User.ID == "" {
		resp, err = s.auth.SignIn(ctx, acc.Email, acc.Password)
		if err != nil {
			return "", fmt.Errorf("account %s: %w", acc.Email, err)
		}
	}
	if resp.User == nil || strings.TrimSpace(resp.User.ID) == "" {
		return "", fmt.Errorf("account %s: no user id returned", acc.Email)
	}
	if err := s.store.SetRole(ctx, resp.User.ID, role); err != nil {
		return "", fmt.Errorf("role for %s: %w", acc.Email, err)
	}
	return resp.User.ID, nil
}

func storageNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

// Package seed loads hierarchy fixtures (organizations, cities, agents and
// auto-decline flags) from YAML and upserts them into a repository store.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/repository"
)

// Fixture is the document read by coopctl seed.
type Fixture struct {
	Organizations []Organization `yaml:"organizations"`
	Cities        []City         `yaml:"cities"`
	Agents        []Agent        `yaml:"agents"`
}

// Organization entry. Parent is the id of the next tier up.
type Organization struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	Federation  string `yaml:"federation"`
	Parent      string `yaml:"parent"`
	AutoDecline *bool  `yaml:"auto_decline"`
}

// City entry.
type City struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Responsible string `yaml:"responsible"`
}

// Agent entry. Agents are active unless stated otherwise.
type Agent struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Email  string `yaml:"email"`
	Org    string `yaml:"org"`
	Active *bool  `yaml:"active"`
}

// Result counts what Apply wrote.
type Result struct {
	Organizations int
	Cities        int
	Agents        int
	Settings      int
}

// LoadFile reads and validates a fixture file.
func LoadFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a fixture, rejecting unknown keys.
func Parse(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks ids, kinds and references inside the document.
func (f *Fixture) Validate() error {
	var problems []string
	orgs := make(map[string]domain.OrgKind, len(f.Organizations))
	for i, o := range f.Organizations {
		switch {
		case strings.TrimSpace(o.ID) == "":
			problems = append(problems, fmt.Sprintf("organizations[%d]: id required", i))
			continue
		case orgs[o.ID] != "":
			problems = append(problems, fmt.Sprintf("organization %s: duplicate id", o.ID))
			continue
		}
		kind := domain.OrgKind(o.Kind)
		if kindRank(kind) < 0 {
			problems = append(problems, fmt.Sprintf("organization %s: unknown kind %q", o.ID, o.Kind))
			continue
		}
		if kind == domain.OrgKindConfederation && o.AutoDecline != nil && *o.AutoDecline {
			problems = append(problems, fmt.Sprintf("organization %s: confederation cannot auto-decline", o.ID))
		}
		orgs[o.ID] = kind
	}
	for _, o := range f.Organizations {
		if o.Parent == "" || orgs[o.ID] == "" {
			continue
		}
		parentKind, ok := orgs[o.Parent]
		if !ok {
			problems = append(problems, fmt.Sprintf("organization %s: unknown parent %s", o.ID, o.Parent))
			continue
		}
		if kindRank(parentKind) <= kindRank(orgs[o.ID]) {
			problems = append(problems, fmt.Sprintf("organization %s: parent %s is not a higher tier", o.ID, o.Parent))
		}
	}
	for i, c := range f.Cities {
		if c.ID == "" || c.Responsible == "" {
			problems = append(problems, fmt.Sprintf("cities[%d]: id and responsible required", i))
			continue
		}
		if _, ok := orgs[c.Responsible]; !ok {
			problems = append(problems, fmt.Sprintf("city %s: unknown responsible org %s", c.ID, c.Responsible))
		}
	}
	for i, a := range f.Agents {
		if a.ID == "" || a.Email == "" || a.Org == "" {
			problems = append(problems, fmt.Sprintf("agents[%d]: id, email and org required", i))
			continue
		}
		if _, ok := orgs[a.Org]; !ok {
			problems = append(problems, fmt.Sprintf("agent %s: unknown org %s", a.ID, a.Org))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid fixture: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Apply upserts the fixture. Organizations are written top tier first so
// parents exist before their children.
func (f *Fixture) Apply(ctx context.Context, store *repository.Store, now time.Time) (Result, error) {
	var res Result

	orgs := append([]Organization(nil), f.Organizations...)
	sort.SliceStable(orgs, func(i, j int) bool {
		return kindRank(domain.OrgKind(orgs[i].Kind)) > kindRank(domain.OrgKind(orgs[j].Kind))
	})
	for _, o := range orgs {
		org := domain.Organization{
			ID:             o.ID,
			DisplayName:    o.Name,
			Kind:           domain.OrgKind(o.Kind),
			FederationName: o.Federation,
		}
		if org.DisplayName == "" {
			org.DisplayName = o.ID
		}
		if o.Parent != "" {
			parent := o.Parent
			org.ParentID = &parent
		}
		if err := store.Organizations.Upsert(ctx, &org); err != nil {
			return res, fmt.Errorf("upsert organization %s: %w", o.ID, err)
		}
		res.Organizations++

		if o.AutoDecline == nil {
			continue
		}
		setting := domain.EscalationSetting{OrgID: o.ID, AutoDecline: *o.AutoDecline, UpdatedAt: now}
		if err := store.EscalationSettings.Upsert(ctx, &setting); err != nil {
			return res, fmt.Errorf("upsert escalation setting %s: %w", o.ID, err)
		}
		res.Settings++
	}

	for _, c := range f.Cities {
		city := domain.City{ID: c.ID, Name: c.Name, ResponsibleOrgID: c.Responsible}
		if err := store.Cities.Upsert(ctx, &city); err != nil {
			return res, fmt.Errorf("upsert city %s: %w", c.ID, err)
		}
		res.Cities++
	}

	for _, a := range f.Agents {
		active := a.Active == nil || *a.Active
		agent := domain.Agent{
			ID:     a.ID,
			Name:   a.Name,
			Email:  strings.ToLower(strings.TrimSpace(a.Email)),
			OrgID:  a.Org,
			Active: active,
		}
		if err := store.Agents.Upsert(ctx, &agent); err != nil {
			return res, fmt.Errorf("upsert agent %s: %w", a.ID, err)
		}
		res.Agents++
	}
	return res, nil
}

func kindRank(k domain.OrgKind) int {
	switch k {
	case domain.OrgKindLocal:
		return 0
	case domain.OrgKindFederation:
		return 1
	case domain.OrgKindConfederation:
		return 2
	default:
		return -1
	}
}

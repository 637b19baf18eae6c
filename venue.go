package main

import (
	"fmt"
	"math/rand"
	"strings"
)

// VenueCategory is the tagged venue variant. The portal identifies venue
// tiles by a hashed image asset rather than by text, so each category
// maps to a fixed asset id.
type VenueCategory string

const (
	VenueFitness    VenueCategory = "fitness"
	VenueBadminton  VenueCategory = "badminton"
	VenueBasketball VenueCategory = "basketball"
)

var venueTileAssets = map[VenueCategory]string{
	VenueFitness:    "6cf6b63b970a4f4b87193d799d8092c7",
	VenueBadminton:  "317a6df934914473b49996840b305987",
	VenueBasketball: "eaaf3fd0bf624a328966f987fcd0ac52",
}

// ParseVenueCategory accepts both the word form and the single-letter
// form the desktop profiles historically used (A/B/C).
func ParseVenueCategory(s string) (VenueCategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "fitness", "gym":
		return VenueFitness, nil
	case "b", "badminton":
		return VenueBadminton, nil
	case "c", "basketball":
		return VenueBasketball, nil
	}
	return "", fmt.Errorf("%w: unsupported venue category %q (want fitness, badminton or basketball)", ErrConfig, s)
}

// CourtSide picks between the two fixed basketball courts. It is ignored
// for the other categories.
type CourtSide string

const (
	CourtIndoor  CourtSide = "indoor"
	CourtOutdoor CourtSide = "outdoor"
)

// ParseCourtSide maps the profile values ("in"/"out", possibly empty) to
// a court side. Unset defaults to indoor.
func ParseCourtSide(s string) (CourtSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "in", "indoor":
		return CourtIndoor, nil
	case "out", "outdoor":
		return CourtOutdoor, nil
	}
	return "", fmt.Errorf("%w: unsupported court preference %q (want indoor or outdoor)", ErrConfig, s)
}

// resourceStrategy selects a concrete bookable resource once the time
// slot is chosen. One strategy per venue category; adding a category
// means adding a variant/strategy pair here.
type resourceStrategy interface {
	Select(g *GridPage) error
}

// fitnessStrategy books the single gym floor. There is only one, so
// either it is offered or the run fails.
type fitnessStrategy struct{}

func (fitnessStrategy) Select(g *GridPage) error { return g.selectSoleResource() }

// badmintonStrategy picks uniformly at random among the visible available
// courts. Concurrent bookers racing the same release should not all pile
// onto the first-listed court.
type badmintonStrategy struct {
	rng *rand.Rand
}

func (s badmintonStrategy) Select(g *GridPage) error { return g.selectPooledResource(s.rng) }

// basketballStrategy deterministically selects the configured court side,
// ignoring availability pooling.
type basketballStrategy struct {
	court CourtSide
}

func (s basketballStrategy) Select(g *GridPage) error { return g.selectFixedCourt(s.court) }

func strategyFor(cat VenueCategory, court CourtSide, rng *rand.Rand) (resourceStrategy, error) {
	switch cat {
	case VenueFitness:
		return fitnessStrategy{}, nil
	case VenueBadminton:
		return badmintonStrategy{rng: rng}, nil
	case VenueBasketball:
		return basketballStrategy{court: court}, nil
	}
	return nil, fmt.Errorf("%w: no resource strategy for venue category %q", ErrConfig, cat)
}

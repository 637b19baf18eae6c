package main

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const (
	// Bounded wait for steps that are expected to succeed immediately
	// once the prior step rendered.
	stepWait = 10 * time.Second

	// The leftover grid needs a moment to finish rendering after the
	// date click before the cells can be enumerated.
	gridSettleDelay = 300 * time.Millisecond
)

// waitVisible waits for find to produce a visible element within wait,
// returning the element detached from the wait deadline.
func waitVisible(page *rod.Page, wait time.Duration, find func(*rod.Page) (*rod.Element, error)) (*rod.Element, error) {
	p := page.Timeout(wait)
	el, err := find(p)
	if err == nil {
		err = el.WaitVisible()
	}
	p.CancelTimeout()
	if err != nil {
		return nil, err
	}
	return el.CancelTimeout(), nil
}

func waitClick(page *rod.Page, wait time.Duration, find func(*rod.Page) (*rod.Element, error)) error {
	el, err := waitVisible(page, wait, find)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// GridPage drives the reservation grid of the portal.
type GridPage struct {
	page     *rod.Page
	sel      SelectorConfig
	log      *zap.SugaredLogger
	rng      *rand.Rand
	slotWait time.Duration
	pageWait time.Duration
}

func NewGridPage(page *rod.Page, config *Config, log *zap.SugaredLogger) *GridPage {
	return &GridPage{
		page:     page,
		sel:      config.Selectors,
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		slotWait: config.waitTimeout(),
		pageWait: config.pageTimeout(),
	}
}

func (g *GridPage) waitReady() {
	p := g.page.Timeout(g.pageWait)
	defer p.CancelTimeout()
	if err := p.WaitLoad(); err != nil {
		g.log.Debugw("page load wait failed", "error", err)
		return
	}
	p.WaitStable(gridSettleDelay)
}

// SelectCampus picks the fixed campus for this deployment.
func (g *GridPage) SelectCampus() error {
	err := waitClick(g.page, stepWait, func(p *rod.Page) (*rod.Element, error) {
		return p.ElementR(g.sel.CampusButton, g.sel.CampusButtonText)
	})
	if err != nil {
		return fmt.Errorf("failed to select campus: %w", err)
	}
	return nil
}

// SelectVenue clicks the venue tile for the category.
func (g *GridPage) SelectVenue(cat VenueCategory) error {
	asset, ok := venueTileAssets[cat]
	if !ok {
		return fmt.Errorf("%w: no venue tile for category %q", ErrConfig, cat)
	}

	selector := fmt.Sprintf(g.sel.VenueTile, asset)
	err := waitClick(g.page, stepWait, func(p *rod.Page) (*rod.Element, error) {
		return p.Element(selector)
	})
	if err != nil {
		return fmt.Errorf("failed to select venue %s: %w", cat, err)
	}
	return nil
}

// AcquireDate races the grid for the target date. The portal regenerates
// the grid server-side at an unannounced release moment, so attempt 0
// works on the current page state and every later attempt reloads and
// re-runs the campus/venue selection before searching again. First
// success clicks the cell and returns; exhausting the budget fails with
// the date and attempt count.
func (g *GridPage) AcquireDate(dateSpec string, cat VenueCategory, maxAttempts int) error {
	date, err := ResolveDateSpec(dateSpec, time.Now())
	if err != nil {
		return err
	}

	xpath := fmt.Sprintf(g.sel.DateCell, date)
	g.log.Infow("acquiring date", "date", date, "venue", cat, "max_attempts", maxAttempts)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := g.page.Reload(); err != nil {
				return fmt.Errorf("reload failed: %w", err)
			}
			g.waitReady()
			if err := g.SelectCampus(); err != nil {
				return err
			}
			if err := g.SelectVenue(cat); err != nil {
				return err
			}
		}

		err := waitClick(g.page, g.slotWait, func(p *rod.Page) (*rod.Element, error) {
			return p.ElementX(xpath)
		})
		if err == nil {
			g.log.Infow("date acquired", "date", date, "attempt", attempt+1)
			return nil
		}

		g.log.Debugw("date not listed yet", "date", date, "attempt", attempt+1)
	}

	return fmt.Errorf("%w: date %s never appeared within %d attempts", ErrNotAvailable, date, maxAttempts)
}

// SelectTimeSlot clicks the requested slot label. A missing label means
// the slot is not offered at this venue/date; that is terminal.
func (g *GridPage) SelectTimeSlot(label string) error {
	err := waitClick(g.page, stepWait, func(p *rod.Page) (*rod.Element, error) {
		return p.ElementR(g.sel.GridCell, regexp.QuoteMeta(label))
	})
	if err != nil {
		return fmt.Errorf("%w: %q not offered at this venue/date", ErrSlotNotFound, label)
	}
	return nil
}

// selectSoleResource books the single fitness floor.
func (g *GridPage) selectSoleResource() error {
	err := waitClick(g.page, stepWait, func(p *rod.Page) (*rod.Element, error) {
		return p.ElementR(g.sel.GridCell, g.sel.FitnessText)
	})
	if err != nil {
		return fmt.Errorf("%w: gym floor not bookable: %v", ErrNoResourceAvailable, err)
	}
	return nil
}

// selectPooledResource enumerates the visible available courts and picks
// one uniformly at random. No candidates means no click at all.
func (g *GridPage) selectPooledResource(rng *rand.Rand) error {
	els, err := g.page.ElementsX(g.sel.PooledResources)
	if err != nil {
		return fmt.Errorf("failed to scan pooled resources: %w", err)
	}

	var visible []*rod.Element
	for _, el := range els {
		if shown, err := el.Visible(); err == nil && shown {
			visible = append(visible, el)
		}
	}

	if len(visible) == 0 {
		return fmt.Errorf("%w: no pooled resource visible in this slot", ErrNoResourceAvailable)
	}

	chosen := visible[rng.Intn(len(visible))]
	if text, err := chosen.Text(); err == nil {
		g.log.Infow("pooled resource chosen", "resource", strings.TrimSpace(text), "candidates", len(visible))
	}

	return chosen.Click(proto.InputMouseButtonLeft, 1)
}

// selectFixedCourt deterministically picks the configured court side.
func (g *GridPage) selectFixedCourt(court CourtSide) error {
	// Wait for the court cells to render before targeting one.
	_, err := waitVisible(g.page, stepWait, func(p *rod.Page) (*rod.Element, error) {
		return p.ElementR(g.sel.GridCell, g.sel.CourtReadyText)
	})
	if err != nil {
		return fmt.Errorf("%w: no court cells rendered: %v", ErrNoResourceAvailable, err)
	}

	text := g.sel.CourtIndoor
	if court == CourtOutdoor {
		text = g.sel.CourtOutdoor
	}

	err = waitClick(g.page, stepWait, func(p *rod.Page) (*rod.Element, error) {
		return p.ElementR(g.sel.GridCell, text)
	})
	if err != nil {
		return fmt.Errorf("%w: court %s not bookable: %v", ErrNoResourceAvailable, court, err)
	}

	g.log.Infow("court selected", "side", court)
	return nil
}

// Submit confirms the reservation.
func (g *GridPage) Submit() error {
	err := waitClick(g.page, stepWait, func(p *rod.Page) (*rod.Element, error) {
		return p.ElementR(g.sel.SubmitButton, g.sel.SubmitText)
	})
	if err != nil {
		return fmt.Errorf("failed to submit booking: %w", err)
	}
	g.log.Info("booking submitted")
	return nil
}

var slotLabelPattern = regexp.MustCompile(`\d{2}:\d{2}-\d{2}:\d{2}`)

// slotLabel extracts the HH:MM-HH:MM label from a grid cell's text,
// falling back to the trimmed cell text when no label is embedded.
func slotLabel(cellText string) string {
	if label := slotLabelPattern.FindString(cellText); label != "" {
		return label
	}
	return strings.Join(strings.Fields(cellText), " ")
}

// LeftoverSlots scans the grid for currently bookable time slots and
// returns their labels in display order. Zero slots is an empty list,
// not an error.
func (g *GridPage) LeftoverSlots() ([]string, error) {
	time.Sleep(gridSettleDelay)

	els, err := g.page.Elements(g.sel.GridCell)
	if err != nil {
		return nil, fmt.Errorf("failed to scan slot grid: %w", err)
	}

	labels := []string{}
	for _, el := range els {
		text, err := el.Text()
		if err != nil || !strings.Contains(text, g.sel.AvailableText) {
			continue
		}
		if shown, err := el.Visible(); err != nil || !shown {
			continue
		}
		labels = append(labels, slotLabel(text))
	}

	return labels, nil
}

// BookingRequest is the resolved reservation target.
type BookingRequest struct {
	Date        string
	TimeSlot    string
	Venue       VenueCategory
	Court       CourtSide
	MaxAttempts int
}

func buildRequest(config *Config) (BookingRequest, error) {
	venue, err := ParseVenueCategory(config.Venue)
	if err != nil {
		return BookingRequest{}, err
	}

	court, err := ParseCourtSide(config.Court)
	if err != nil {
		return BookingRequest{}, err
	}

	attempts := config.MaxPollAttempts
	if attempts <= 0 {
		attempts = 100
	}

	return BookingRequest{
		Date:        config.Date,
		TimeSlot:    config.TimeSlot,
		Venue:       venue,
		Court:       court,
		MaxAttempts: attempts,
	}, nil
}

type stage struct {
	name Stage
	run  func() error
}

// runStages executes the pipeline in order, short-circuiting on the
// first failure and tagging the error with the stage that raised it.
func runStages(stages []stage) error {
	for _, st := range stages {
		if err := st.run(); err != nil {
			return &StageError{Stage: st.name, Err: err}
		}
	}
	return nil
}

// Orchestrator sequences one booking over an authenticated session.
type Orchestrator struct {
	grid   *GridPage
	pay    *PayPage
	config *Config
	log    *zap.SugaredLogger
}

func NewOrchestrator(page *rod.Page, config *Config, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		grid:   NewGridPage(page, config, log),
		pay:    NewPayPage(page, config, log),
		config: config,
		log:    log,
	}
}

// Book runs the full pipeline and classifies the result. No stage is
// retried beyond the date poller's internal budget; a half-submitted
// order must be surfaced, not re-driven, to avoid double charges.
func (o *Orchestrator) Book(req BookingRequest) Outcome {
	strategy, err := strategyFor(req.Venue, req.Court, o.grid.rng)
	if err != nil {
		return ClassifyOutcome(&StageError{Stage: StageConfig, Err: err})
	}

	err = runStages([]stage{
		{StageCampus, o.grid.SelectCampus},
		{StageVenue, func() error { return o.grid.SelectVenue(req.Venue) }},
		{StageAvailability, func() error { return o.grid.AcquireDate(req.Date, req.Venue, req.MaxAttempts) }},
		{StageTimeSlot, func() error { return o.grid.SelectTimeSlot(req.TimeSlot) }},
		{StageResource, func() error { return strategy.Select(o.grid) }},
		{StageSubmit, o.grid.Submit},
		{StagePayment, func() error { return o.pay.Pay(o.config.PayPass) }},
	})
	if err != nil {
		var stageErr *StageError
		fields := []interface{}{"error", err, "date", req.Date, "slot", req.TimeSlot, "venue", req.Venue}
		if errors.As(err, &stageErr) {
			fields = append(fields, "stage", stageErr.Stage)
		}
		o.log.Errorw("booking failed", fields...)
	}

	return ClassifyOutcome(err)
}

// Leftover resolves the date and returns the bookable slot labels
// without mutating any booking state.
func (o *Orchestrator) Leftover(req BookingRequest) ([]string, error) {
	err := runStages([]stage{
		{StageCampus, o.grid.SelectCampus},
		{StageVenue, func() error { return o.grid.SelectVenue(req.Venue) }},
		{StageAvailability, func() error { return o.grid.AcquireDate(req.Date, req.Venue, req.MaxAttempts) }},
	})
	if err != nil {
		return nil, err
	}

	return o.grid.LeftoverSlots()
}

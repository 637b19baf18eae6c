package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const payConfirmWait = 10 * time.Second

type payRoute int

const (
	routeNone payRoute = iota
	routeBalance
	routeFund
)

// paymentRoute decides the flow from the number of visible pay actions.
// Exactly one means the standing balance already covers the order; more
// means the funded-account flow with the virtual keypad is required. The
// split depends on live account balance, so it can only be read off the
// page, never configured.
func paymentRoute(visiblePayActions int) payRoute {
	switch {
	case visiblePayActions <= 0:
		return routeNone
	case visiblePayActions == 1:
		return routeBalance
	default:
		return routeFund
	}
}

// keypadDigits splits the payment secret into the per-digit keys of the
// virtual keypad. The keypad has no text field, only digit buttons.
func keypadDigits(secret string) ([]string, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: pay_pass is required for the funded payment flow", ErrConfig)
	}
	digits := make([]string, 0, len(secret))
	for _, r := range secret {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: pay_pass must be digits only", ErrConfig)
		}
		digits = append(digits, string(r))
	}
	return digits, nil
}

// PayPage drives the order payment views.
type PayPage struct {
	page *rod.Page
	sel  SelectorConfig
	log  *zap.SugaredLogger
}

func NewPayPage(page *rod.Page, config *Config, log *zap.SugaredLogger) *PayPage {
	return &PayPage{
		page: page,
		sel:  config.Selectors,
		log:  log,
	}
}

// Pay opens the unpaid order and drives whichever payment flow the live
// page state requires.
func (p *PayPage) Pay(paySecret string) error {
	err := waitClick(p.page, payConfirmWait, func(pg *rod.Page) (*rod.Element, error) {
		return pg.ElementR("a", p.sel.UnpaidText)
	})
	if err != nil {
		return fmt.Errorf("%w: unpaid order not found: %v", ErrPayment, err)
	}

	_, err = waitVisible(p.page, payConfirmWait, func(pg *rod.Page) (*rod.Element, error) {
		return pg.ElementR("button", p.sel.PayActionText)
	})
	if err != nil {
		return fmt.Errorf("%w: payment view did not open: %v", ErrPayment, err)
	}

	actions, err := p.visiblePayActions()
	if err != nil {
		return fmt.Errorf("%w: failed to inspect pay actions: %v", ErrPayment, err)
	}

	switch paymentRoute(actions) {
	case routeBalance:
		p.log.Infow("order covered by standing balance", "actions", actions)
		return p.payWithBalance()
	case routeFund:
		p.log.Infow("order requires funded-account payment", "actions", actions)
		return p.payWithFund(paySecret)
	default:
		return fmt.Errorf("%w: no pay action visible on the order", ErrPayment)
	}
}

func (p *PayPage) visiblePayActions() (int, error) {
	els, err := p.page.Elements("button")
	if err != nil {
		return 0, err
	}

	// The selector holds a JS regex; the literal text is the same with
	// the escapes dropped.
	marker := strings.ReplaceAll(p.sel.PayActionText, `\`, "")

	count := 0
	for _, el := range els {
		text, err := el.Text()
		if err != nil || !strings.Contains(text, marker) {
			continue
		}
		if shown, err := el.Visible(); err == nil && shown {
			count++
		}
	}
	return count, nil
}

// payWithBalance clicks the single balance action. No secret needed.
func (p *PayPage) payWithBalance() error {
	err := waitClick(p.page, payConfirmWait, func(pg *rod.Page) (*rod.Element, error) {
		return pg.ElementR("button", p.sel.BalancePayText)
	})
	if err != nil {
		return fmt.Errorf("%w: balance pay action failed: %v", ErrPayment, err)
	}
	return p.waitConfirmed(p.page)
}

// payWithFund triggers the funded payment, which opens a secondary
// payment view, then walks its confirmation and digit keypad.
func (p *PayPage) payWithFund(paySecret string) error {
	digits, err := keypadDigits(paySecret)
	if err != nil {
		return err
	}

	wait := p.page.WaitOpen()
	err = waitClick(p.page, payConfirmWait, func(pg *rod.Page) (*rod.Element, error) {
		return pg.ElementR("button", p.sel.FundPayText)
	})
	if err != nil {
		return fmt.Errorf("%w: funded pay action failed: %v", ErrPayment, err)
	}

	popup, err := wait()
	if err != nil {
		return fmt.Errorf("%w: payment view never opened: %v", ErrPayment, err)
	}

	err = waitClick(popup, payConfirmWait, func(pg *rod.Page) (*rod.Element, error) {
		return pg.ElementR("button", p.sel.NextStepText)
	})
	if err != nil {
		return fmt.Errorf("%w: payment confirmation step failed: %v", ErrPayment, err)
	}

	err = waitClick(popup, payConfirmWait, func(pg *rod.Page) (*rod.Element, error) {
		return pg.Element(p.sel.KeypadInput)
	})
	if err != nil {
		return fmt.Errorf("%w: keypad did not appear: %v", ErrPayment, err)
	}

	for _, digit := range digits {
		key, err := popup.Element(fmt.Sprintf(p.sel.KeypadKey, digit))
		if err != nil {
			return fmt.Errorf("%w: keypad key missing: %v", ErrPayment, err)
		}
		if err := key.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("%w: keypad input failed: %v", ErrPayment, err)
		}
	}

	confirm, err := popup.Element(p.sel.KeypadConfirm)
	if err != nil {
		return fmt.Errorf("%w: keypad confirm button missing: %v", ErrPayment, err)
	}
	if err := confirm.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("%w: keypad confirm failed: %v", ErrPayment, err)
	}

	return p.waitConfirmed(popup)
}

// waitConfirmed requires the success indicator within a bounded wait.
// Absence is a payment failure, never silently assumed to have worked.
func (p *PayPage) waitConfirmed(page *rod.Page) error {
	_, err := waitVisible(page, payConfirmWait, func(pg *rod.Page) (*rod.Element, error) {
		return pg.ElementR("div, span, p, h1, h2, h3", p.sel.PaySuccessText)
	})
	if err != nil {
		return fmt.Errorf("%w: success indicator not shown within %s", ErrPayment, payConfirmWait)
	}

	p.log.Info("payment confirmed")
	return nil
}

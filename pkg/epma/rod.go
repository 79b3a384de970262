package epma

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"epmasuppress/pkg/config"
	errs "epmasuppress/pkg/errors"
	"epmasuppress/pkg/logger"
)

const (
	navigationTimeout = 60 * time.Second
	urlPollInterval   = 100 * time.Millisecond
)

// RodDriver drives one Chrome tab through the DevTools protocol
type RodDriver struct {
	browser       *rod.Browser
	page          *rod.Page
	launcher      *launcher.Launcher // nil when attached to an existing Chrome
	actionTimeout time.Duration
	log           logger.Logger
}

// NewRodDriver launches Chrome, or attaches to cfg.ControlURL, and opens a
// tab. actionTimeout bounds each click and keystroke on a found element.
func NewRodDriver(ctx context.Context, cfg config.BrowserConfig, actionTimeout time.Duration) (*RodDriver, error) {
	log := logger.GetLogger().WithField("component", "browser")

	controlURL := cfg.ControlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().
			Context(ctx).
			Headless(cfg.Headless).
			Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		for _, raw := range cfg.Flags {
			name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}

		u, err := l.Launch()
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeBrowser, "launch chrome", "", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, errs.Wrap(errs.ErrorTypeBrowser, "connect to chrome", "", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		return nil, errs.Wrap(errs.ErrorTypeBrowser, "open tab", "", err)
	}

	if cfg.Headless {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.WindowWidth,
			Height:            cfg.WindowHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			log.WithError(err).Warn("Failed to set viewport")
		}
	}

	log.InfoWithFields("Browser ready", map[string]interface{}{
		"headless": cfg.Headless,
		"attached": cfg.ControlURL != "",
	})

	return &RodDriver{
		browser:       browser,
		page:          page,
		launcher:      l,
		actionTimeout: actionTimeout,
		log:           log,
	}, nil
}

func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx).Timeout(navigationTimeout)
	if err := p.Navigate(url); err != nil {
		return translate(ctx, "navigate", Locator{Name: url}, err)
	}
	if err := p.WaitLoad(); err != nil {
		return translate(ctx, "navigate", Locator{Name: url}, err)
	}
	return nil
}

func (d *RodDriver) URL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", translate(ctx, "read url", Locator{}, err)
	}
	return info.URL, nil
}

func (d *RodDriver) WaitURLContains(ctx context.Context, substr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		u, err := d.URL(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(u, substr) {
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.ErrorTypeTimeout, "wait for url", fmt.Sprintf("url %q does not contain %q", u, substr))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(urlPollInterval):
		}
	}
}

// find waits up to timeout for the first element matching loc
func (d *RodDriver) find(ctx context.Context, loc Locator, timeout time.Duration) (*rod.Element, error) {
	p := d.page.Context(ctx).Timeout(timeout)
	if loc.IsXPath() {
		return p.ElementX(loc.XPath())
	}
	return p.Element(loc.CSS())
}

func (d *RodDriver) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	el, err := d.find(ctx, loc, timeout)
	if err == nil {
		err = el.WaitVisible()
	}
	if err != nil {
		return nil, translate(ctx, "wait visible", loc, err)
	}
	return d.wrap(el, loc), nil
}

func (d *RodDriver) WaitClickable(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	el, err := d.find(ctx, loc, timeout)
	if err == nil {
		_, err = el.WaitInteractable()
	}
	if err != nil {
		return nil, translate(ctx, "wait clickable", loc, err)
	}
	return d.wrap(el, loc), nil
}

func (d *RodDriver) WaitPresent(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	el, err := d.find(ctx, loc, timeout)
	if err != nil {
		return nil, translate(ctx, "wait present", loc, err)
	}
	return d.wrap(el, loc), nil
}

func (d *RodDriver) FindAll(ctx context.Context, loc Locator, timeout time.Duration) ([]Element, error) {
	if _, err := d.find(ctx, loc, timeout); err != nil {
		return nil, translate(ctx, "find all", loc, err)
	}

	p := d.page.Context(ctx)
	var (
		found rod.Elements
		err   error
	)
	if loc.IsXPath() {
		found, err = p.ElementsX(loc.XPath())
	} else {
		found, err = p.Elements(loc.CSS())
	}
	if err != nil {
		return nil, translate(ctx, "find all", loc, err)
	}

	out := make([]Element, 0, len(found))
	for _, el := range found {
		out = append(out, d.wrap(el, loc))
	}
	return out, nil
}

func (d *RodDriver) Find(ctx context.Context, loc Locator) (Element, error) {
	p := d.page.Context(ctx).Sleeper(rod.NotFoundSleeper)
	var (
		el  *rod.Element
		err error
	)
	if loc.IsXPath() {
		el, err = p.ElementX(loc.XPath())
	} else {
		el, err = p.Element(loc.CSS())
	}
	if err != nil {
		return nil, translate(ctx, "find", loc, err)
	}
	return d.wrap(el, loc), nil
}

// Close closes the tab, and the browser too when this driver launched it
func (d *RodDriver) Close() error {
	if d.launcher == nil {
		return d.page.Close()
	}
	err := d.browser.Close()
	d.launcher.Kill()
	d.launcher.Cleanup()
	return err
}

func (d *RodDriver) wrap(el *rod.Element, loc Locator) *rodElement {
	return &rodElement{el: el, loc: loc, timeout: d.actionTimeout}
}

type rodElement struct {
	el      *rod.Element
	loc     Locator
	timeout time.Duration
}

func (e *rodElement) bind(ctx context.Context) *rod.Element {
	return e.el.Context(ctx).Timeout(ActionTimeout(ctx, e.timeout))
}

func (e *rodElement) Click(ctx context.Context) error {
	err := e.bind(ctx).Click(proto.InputMouseButtonLeft, 1)
	if err != nil && stderrors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		// a click waits for the element to be uncovered; report why it never was
		if _, ierr := e.el.Context(ctx).Interactable(); ierr != nil {
			err = ierr
		}
	}
	return translate(ctx, "click", e.loc, err)
}

func (e *rodElement) Input(ctx context.Context, text string) error {
	return translate(ctx, "input", e.loc, e.bind(ctx).Input(text))
}

func (e *rodElement) Clear(ctx context.Context) error {
	el := e.bind(ctx)
	if err := el.SelectAllText(); err != nil {
		return translate(ctx, "clear", e.loc, err)
	}
	return translate(ctx, "clear", e.loc, el.Input(""))
}

func (e *rodElement) PressEnter(ctx context.Context) error {
	return translate(ctx, "press enter", e.loc, e.bind(ctx).Type(input.Enter))
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	text, err := e.bind(ctx).Text()
	return text, translate(ctx, "read text", e.loc, err)
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, error) {
	attr, err := e.bind(ctx).Attribute(name)
	if err != nil {
		return "", translate(ctx, "read attribute", e.loc, err)
	}
	if attr == nil {
		return "", nil
	}
	return *attr, nil
}

func (e *rodElement) Value(ctx context.Context) (string, error) {
	v, err := e.bind(ctx).Property("value")
	if err != nil {
		return "", translate(ctx, "read value", e.loc, err)
	}
	return v.Str(), nil
}

// staleMarkers are CDP messages for a node that left the document
var staleMarkers = []string{
	"does not belong to the document",
	"Could not find node with given id",
	"No node with given id found",
	"Cannot find context with specified id",
	"Node is detached from document",
}

// translate maps go-rod failures onto typed errors. A cancelled run
// context wins over whatever the browser reported.
func translate(ctx context.Context, op string, loc Locator, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var (
		notFound  *rod.ElementNotFoundError
		covered   *rod.CoveredError
		invisible *rod.InvisibleShapeError
		t         errs.ErrorType
	)
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		t = errs.ErrorTypeTimeout
	case stderrors.As(err, &notFound):
		t = errs.ErrorTypeNotFound
	case stderrors.As(err, &covered), stderrors.As(err, &invisible):
		t = errs.ErrorTypeClickIntercepted
	case isStale(err):
		t = errs.ErrorTypeStale
	default:
		t = errs.ErrorTypeBrowser
	}
	return errs.Wrap(t, op, loc.Name, err)
}

func isStale(err error) bool {
	msg := err.Error()
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

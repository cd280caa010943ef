// Package cdp implements the uidriver contract on top of a Chrome
// instance driven over the DevTools protocol. One Driver owns one
// browser tab; element handles wrap DevTools nodes and report ErrStale
// once the portal re-renders the underlying DOM.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"bussola-backend/lib/uidriver"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultPace     = 250 * time.Millisecond
	locatePollDelay = 100 * time.Millisecond
)

// Options configure one browser session.
type Options struct {
	// CDPURL attaches to an already-running browser instead of spawning
	// one.
	CDPURL     string
	ChromePath string
	Headless   bool
	// WindowWidth/WindowHeight default to 1920x1080.
	WindowWidth  int
	WindowHeight int
	// Timeout is the implicit wait bound applied to every locate call
	// and the per-action deadline. Defaults to 10s.
	Timeout time.Duration
	// Pace is the minimum delay between consecutive browser actions;
	// the portal misbehaves when driven faster than a human-scale
	// cadence. Defaults to 250ms.
	Pace time.Duration
	// ExtraFlags are passed through to the browser process.
	ExtraFlags map[string]any
}

type Driver struct {
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	timeout     time.Duration
	limiter     *rate.Limiter

	closeOnce sync.Once
	closeErr  error
}

// New starts (or attaches to) a browser and opens the tab the driver
// owns.
func New(ctx context.Context, opts Options) (*Driver, error) {
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Pace == 0 {
		opts.Pace = defaultPace
	}
	if opts.WindowWidth == 0 {
		opts.WindowWidth = 1920
	}
	if opts.WindowHeight == 0 {
		opts.WindowHeight = 1080
	}

	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if opts.CDPURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, opts.CDPURL)
	} else {
		flags := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", opts.Headless),
			chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
		)
		if opts.ChromePath != "" {
			flags = append(flags, chromedp.ExecPath(opts.ChromePath))
		}
		for name, value := range opts.ExtraFlags {
			flags = append(flags, chromedp.Flag(name, value))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(ctx, flags...)
	}

	tab, cancelTab := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(tab); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	return &Driver{
		tab:         tab,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		timeout:     opts.Timeout,
		limiter:     rate.NewLimiter(rate.Every(opts.Pace), 1),
	}, nil
}

// run executes actions against the tab, paced and bounded by the
// per-action deadline. Caller cancellation propagates into the run.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(d.tab, d.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return translateError(chromedp.Run(runCtx, actions...))
}

// selector renders a locator as a querySelector expression. ADF ids
// contain colons, so id locators use the attribute form rather than `#`.
func selector(loc uidriver.Locator) string {
	switch loc.By {
	case uidriver.ByID:
		return fmt.Sprintf("[id=%s]", strconv.Quote(loc.Value))
	case uidriver.ByClass:
		return "." + loc.Value
	default:
		return loc.Value
	}
}

// translateError maps DevTools node failures onto the uidriver error
// kinds. A node id the browser no longer knows means the DOM subtree was
// replaced under us.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "could not find node") ||
		strings.Contains(msg, "no node with given id") ||
		strings.Contains(msg, "node with given id does not belong") {
		return fmt.Errorf("%w: %v", uidriver.ErrStale, err)
	}
	return err
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

// Locate resolves one element, polling until the implicit wait bound
// elapses.
func (d *Driver) Locate(ctx context.Context, loc uidriver.Locator) (uidriver.Element, error) {
	sel := selector(loc)
	deadline := time.Now().Add(d.timeout)
	for {
		var nodes []*cdp.Node
		err := d.run(ctx, chromedp.Nodes(sel, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)))
		if err != nil {
			return nil, err
		}
		if len(nodes) > 0 {
			return element{drv: d, node: nodes[0]}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("locate %s: %w", loc, uidriver.ErrNotFound)
		}
		select {
		case <-time.After(locatePollDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (d *Driver) LocateAll(ctx context.Context, loc uidriver.Locator) ([]uidriver.Element, error) {
	var nodes []*cdp.Node
	err := d.run(ctx, chromedp.Nodes(selector(loc), &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, err
	}
	out := make([]uidriver.Element, len(nodes))
	for i, n := range nodes {
		out[i] = element{drv: d, node: n}
	}
	return out, nil
}

func (d *Driver) RunScript(ctx context.Context, code string) error {
	return d.run(ctx, chromedp.Evaluate(code, nil))
}

func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = chromedp.Cancel(d.tab)
		d.cancelTab()
		d.cancelAlloc()
	})
	return d.closeErr
}

type element struct {
	drv  *Driver
	node *cdp.Node
}

func (e element) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e element) Text(ctx context.Context) (string, error) {
	var out string
	err := e.drv.run(ctx, chromedp.Text(e.ids(), &out, chromedp.ByNodeID))
	return out, err
}

// attributeJS prefers the live element property over the DOM attribute
// list: typing updates the value property and clicking a checkbox updates
// the checked property, neither ever rewrites the attribute. Primitive
// properties are coerced to strings in page context; everything else falls
// back to getAttribute.
const attributeJS = `function(name) {
	var v = this[name];
	if (v === undefined || v === null || typeof v === "object" || typeof v === "function") {
		if (this.hasAttribute && this.hasAttribute(name)) {
			return this.getAttribute(name);
		}
		return null;
	}
	return String(v);
}`

func (e element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var value string
	var present bool
	err := e.drv.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		res, err := e.call(ctx, attributeJS, name)
		if err != nil {
			return err
		}
		value, present, err = attributeValue(res.Type, res.Value)
		return err
	}))
	if err != nil {
		return "", false, err
	}
	return value, present, nil
}

// attributeValue decodes the string-or-null result of attributeJS.
func attributeValue(typ runtime.Type, raw []byte) (string, bool, error) {
	if typ != runtime.TypeString {
		return "", false, nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (e element) Click(ctx context.Context) error {
	return e.drv.run(ctx, chromedp.Click(e.ids(), chromedp.ByNodeID))
}

func (e element) SendKeys(ctx context.Context, text string) error {
	return e.drv.run(ctx, chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID))
}

// selectByLabelJS runs against the <select> object: it picks the option
// whose visible label matches exactly and fires a change event, the same
// signal a manual selection produces.
const selectByLabelJS = `function(label) {
	var opts = this.options ? Array.prototype.slice.call(this.options) : [];
	for (var i = 0; i < opts.length; i++) {
		var o = opts[i];
		if ((o.label || "").trim() === label || (o.text || "").trim() === label) {
			this.value = o.value;
			this.dispatchEvent(new Event("change", { bubbles: true }));
			return true;
		}
	}
	return false;
}`

func (e element) SelectByLabel(ctx context.Context, label string) error {
	found := false
	err := e.drv.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		res, err := e.call(ctx, selectByLabelJS, label)
		if err != nil {
			return err
		}
		return json.Unmarshal(res.Value, &found)
	}))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("select %q: %w", label, uidriver.ErrOptionNotFound)
	}
	return nil
}

// call invokes fn in page context with `this` bound to the element's
// resolved object, returning the by-value result.
func (e element) call(ctx context.Context, fn string, args ...any) (*runtime.RemoteObject, error) {
	obj, err := dom.ResolveNode().WithBackendNodeID(e.node.BackendNodeID).Do(ctx)
	if err != nil {
		return nil, err
	}
	defer runtime.ReleaseObject(obj.ObjectID).Do(ctx)

	callArgs := make([]*runtime.CallArgument, len(args))
	for i, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		callArgs[i] = &runtime.CallArgument{Value: raw}
	}
	res, exception, err := runtime.CallFunctionOn(fn).
		WithObjectID(obj.ObjectID).
		WithArguments(callArgs).
		WithReturnByValue(true).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if exception != nil {
		return nil, exception
	}
	return res, nil
}

func (e element) Locate(ctx context.Context, loc uidriver.Locator) (uidriver.Element, error) {
	nodes, err := e.children(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("locate %s: %w", loc, uidriver.ErrNotFound)
	}
	return element{drv: e.drv, node: nodes[0]}, nil
}

func (e element) LocateAll(ctx context.Context, loc uidriver.Locator) ([]uidriver.Element, error) {
	nodes, err := e.children(ctx, loc)
	if err != nil {
		return nil, err
	}
	out := make([]uidriver.Element, len(nodes))
	for i, n := range nodes {
		out[i] = element{drv: e.drv, node: n}
	}
	return out, nil
}

func (e element) children(ctx context.Context, loc uidriver.Locator) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	err := e.drv.run(ctx, chromedp.Nodes(
		selector(loc), &nodes,
		chromedp.ByQueryAll, chromedp.FromNode(e.node), chromedp.AtLeast(0),
	))
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// Package browser drives headless Chrome sessions over the DevTools
// protocol and extracts Performance domain snapshots from them.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/performance"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/pagewatch/pagewatch/internal/model"
)

// Capture is the result of one page trace: the final resolved location after
// redirects and the Performance domain snapshot taken at network idle.
type Capture struct {
	FinalURL string
	Metrics  model.MetricsPayload
}

type Options struct {
	// NavigationTimeout bounds the whole session, browser launch through
	// metrics snapshot.
	NavigationTimeout time.Duration

	// NetworkQuietPeriod is how long the network must stay free of in-flight
	// requests before the navigation counts as settled.
	NetworkQuietPeriod time.Duration
}

// Chrome launches one isolated headless browser session per Trace call.
// A Chrome value carries no cross-invocation state and is safe for
// concurrent use.
type Chrome struct {
	opts Options
}

func NewChrome(opts Options) *Chrome {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	if opts.NetworkQuietPeriod <= 0 {
		opts.NetworkQuietPeriod = 500 * time.Millisecond
	}
	return &Chrome{opts: opts}
}

// allocatorOptions disables the Chromium sandbox: the container runtime does
// not grant the privileges sandboxed renderers require.
func allocatorOptions() []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
}

// Trace loads url in a fresh browser session, suspends until the network has
// been idle for the configured quiet period, and returns the performance
// snapshot together with the post-redirect location. The session is torn
// down before returning on every path, success or failure.
func (c *Chrome) Trace(ctx context.Context, url string) (*Capture, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.NavigationTimeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions()...)
	defer cancelAlloc()

	logger := zerolog.Ctx(ctx)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Warn().Msgf(format, args...)
		}),
	)
	defer cancelTask()

	tracker := newIdleTracker(c.opts.NetworkQuietPeriod)
	chromedp.ListenTarget(taskCtx, tracker.Handle)

	if err := chromedp.Run(taskCtx,
		network.Enable(),
		performance.Enable(),
		chromedp.Navigate(url),
	); err != nil {
		return nil, fmt.Errorf("navigating to %s: %w", url, err)
	}

	// The load event has fired; now wait out any trailing network activity.
	tracker.Arm()
	select {
	case <-tracker.Idle():
	case <-taskCtx.Done():
		return nil, fmt.Errorf("waiting for network idle on %s: %w", url, taskCtx.Err())
	}

	capture := &Capture{}
	if err := chromedp.Run(taskCtx,
		chromedp.Location(&capture.FinalURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			metrics, err := performance.GetMetrics().Do(ctx)
			if err != nil {
				return err
			}
			capture.Metrics.Metrics = make([]model.Metric, 0, len(metrics))
			for _, m := range metrics {
				capture.Metrics.Metrics = append(capture.Metrics.Metrics, model.Metric{
					Name:  m.Name,
					Value: m.Value,
				})
			}
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("reading performance metrics for %s: %w", url, err)
	}

	return capture, nil
}

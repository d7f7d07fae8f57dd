package ratelimit

import (
	"context"
	"math/rand"
	"time"

	"weibocrawler/pkg/retry"
)

// PacerConfig describes the page pacing window: after every k pages, with k
// drawn from [EveryMin, EveryMax], pause for a whole number of seconds drawn
// from [PauseMin, PauseMax].
type PacerConfig struct {
	EveryMin int
	EveryMax int
	PauseMin time.Duration
	PauseMax time.Duration
}

// PagePacer spaces out page fetches to stay under upstream throttling.
// It is not safe for concurrent use.
type PagePacer struct {
	cfg   PacerConfig
	rng   *rand.Rand
	sleep retry.SleepFunc

	lastPause int // page at which the last pause happened
	every     int // pages between the last pause and the next one
}

// NewPagePacer returns a pacer. A nil rng is seeded from the clock and a nil
// sleep uses retry.Wait.
func NewPagePacer(cfg PacerConfig, rng *rand.Rand, sleep retry.SleepFunc) *PagePacer {
	if cfg.EveryMin <= 0 {
		cfg.EveryMin = 1
	}
	if cfg.EveryMax < cfg.EveryMin {
		cfg.EveryMax = cfg.EveryMin
	}
	if cfg.PauseMax < cfg.PauseMin {
		cfg.PauseMax = cfg.PauseMin
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if sleep == nil {
		sleep = retry.Wait
	}
	p := &PagePacer{cfg: cfg, rng: rng, sleep: sleep}
	p.every = p.drawEvery()
	return p
}

// AfterPage is called once a page has been processed. When k pages have
// passed since the last pause and more pages remain it sleeps and redraws
// k. It returns the pause taken, zero when none was due.
func (p *PagePacer) AfterPage(ctx context.Context, page, pageCount int) (time.Duration, error) {
	if page-p.lastPause != p.every || page >= pageCount {
		return 0, nil
	}

	pause := p.drawPause()
	p.lastPause = page
	p.every = p.drawEvery()

	if err := p.sleep(ctx, pause); err != nil {
		return pause, err
	}
	return pause, nil
}

func (p *PagePacer) drawEvery() int {
	return p.cfg.EveryMin + p.rng.Intn(p.cfg.EveryMax-p.cfg.EveryMin+1)
}

func (p *PagePacer) drawPause() time.Duration {
	span := int64((p.cfg.PauseMax - p.cfg.PauseMin) / time.Second)
	return p.cfg.PauseMin + time.Duration(p.rng.Int63n(span+1))*time.Second
}

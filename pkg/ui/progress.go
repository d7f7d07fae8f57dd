package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"weibocrawler/pkg/crawler"
	"weibocrawler/pkg/models"
)

// CrawlProgress draws a one-line page progress bar per account and a
// summary when the account is done.
type CrawlProgress struct {
	mu         sync.Mutex
	screenName string
	pageCount  int
	page       int
	posts      int
	failed     int
	startTime  time.Time
	isDebug    bool
	notifier   *Notifier
}

// NewCrawlProgress creates a display. With debug set every page is printed
// on its own line instead of redrawing the bar. A nil notifier sends no
// desktop notifications.
func NewCrawlProgress(debug bool, notifier *Notifier) *CrawlProgress {
	return &CrawlProgress{isDebug: debug, notifier: notifier}
}

func (p *CrawlProgress) Start(user models.User, pageCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.screenName = user.ScreenName
	p.pageCount = pageCount
	p.page, p.posts, p.failed = 0, 0, 0
	p.startTime = time.Now()

	PrintInfo("Account", fmt.Sprintf("%s (%d statuses, %d pages)", user.ScreenName, user.StatusesCount, pageCount))
}

func (p *CrawlProgress) Page(page, pageCount, posts int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.page = page
	p.posts += posts
	if err != nil {
		p.failed++
	}
	if IsQuietMode() {
		return
	}

	if p.isDebug {
		if err != nil {
			fmt.Fprintf(output(), "%s page %d/%d skipped: %v\n", Red("✗"), page, pageCount, err)
		} else {
			fmt.Fprintf(output(), "%s page %d/%d • %d posts\n", Green("✓"), page, pageCount, posts)
		}
		return
	}
	fmt.Fprintf(output(), "\r%s\r%s", strings.Repeat(" ", 100), p.line())
}

// line renders the progress bar; callers hold mu
func (p *CrawlProgress) line() string {
	const barWidth = 20
	progress := 0.0
	if p.pageCount > 0 {
		progress = float64(p.page) / float64(p.pageCount)
	}
	filled := int(progress * barWidth)
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("%s [%s] %d/%d pages • %d posts • %s",
		Cyan(p.screenName), bar, p.page, p.pageCount, p.posts, formatDuration(time.Since(p.startTime)))
	if p.failed > 0 {
		line += " • " + Red(fmt.Sprintf("%d failed", p.failed))
	}
	return line
}

func (p *CrawlProgress) Finish(result *crawler.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.startTime)
	title := "Crawl complete"
	summary := fmt.Sprintf("%d posts from %s in %s", len(result.Posts), result.User.ScreenName, formatDuration(elapsed))

	if result.Status != crawler.StatusCompleted {
		title = "Crawl " + string(result.Status)
		PrintError(fmt.Sprintf("\n%s: %s", title, summary))
	} else if !IsQuietMode() {
		fmt.Fprintf(output(), "\n\n%s %s\n", Green("✓"), summary)
		if len(result.FailedPages) > 0 {
			fmt.Fprintf(output(), "  %s pages skipped: %v\n", Dim("•"), result.FailedPages)
		}
		if m := result.Media; m.Uploaded+m.Skipped+m.Failed > 0 {
			fmt.Fprintf(output(), "  %s media: %d uploaded, %d already mirrored, %d failed\n",
				Dim("•"), m.Uploaded, m.Skipped, m.Failed)
		}
	}

	if p.notifier != nil {
		p.notifier.Send(title, summary)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

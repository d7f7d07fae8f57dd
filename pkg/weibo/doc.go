// Package weibo is the HTTP client for the mobile container API.
//
// Two containers are used per account: the profile card (prefix 100505)
// and the status timeline (prefix 107603), ten statuses per page. Long
// statuses are truncated in the timeline; their full text lives in the
// detail page, which is HTML with the status embedded as script data.
//
//	client := weibo.NewClient(15*time.Second, log,
//		weibo.WithCookie(cookie),
//		weibo.WithLimiter(ratelimit.PerMinute(60, 5)))
//	profile, err := client.FetchProfile(ctx, "1669879400")
package weibo

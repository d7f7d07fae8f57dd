package credentials

import (
	"fmt"
	"io"
	"strings"
)

// ShowCookieGuide writes the steps for copying a logged-in m.weibo.cn cookie
func ShowCookieGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "WEIBO COOKIE GUIDE")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The crawler reads timelines through the mobile site and needs a logged-in cookie.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Open https://m.weibo.cn in your browser and log in")
	fmt.Fprintln(w, "2. Open Developer Tools (F12, or Cmd+Option+I on Mac) and go to Network")
	fmt.Fprintln(w, "3. Refresh the page and click any request to m.weibo.cn")
	fmt.Fprintln(w, "4. Under Request Headers copy the whole value of the Cookie header")
	fmt.Fprintln(w, "   It should contain SUB=... among other pairs")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Cookies expire; run 'weibocrawler auth set' again when pages start failing.")
	fmt.Fprintln(w, "The cookie grants full access to the account. Do not share it.")
	fmt.Fprintln(w, rule)
}

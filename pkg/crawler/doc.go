// Package crawler walks an account's timeline page by page.
//
// Each run gets a Session holding the ordered post buffer and its write
// watermark. After every page the unflushed tail goes to the configured
// sinks and then to the enabled media categories. A page that fails to
// fetch or normalize contributes nothing and the run moves on; a sink
// failure ends the run.
package crawler

// Package sink persists normalized posts.
//
// RecordSink is the capability every backend implements; the backends
// live in sub-packages (csvfile, jsonfile, postgres, mongo, neo4j, natsbus).
// FanOut delivers the part of a crawl buffer above the write watermark to
// each configured sink in order and only advances the watermark when all
// of them succeed:
//
//	fan := sink.NewFanOut(sinks, m, log)
//	watermark, err = fan.Flush(ctx, user, posts, watermark)
package sink

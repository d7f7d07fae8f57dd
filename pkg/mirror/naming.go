package mirror

import (
	"fmt"
	"mime"
	"strings"

	"weibocrawler/pkg/models"
)

const (
	defaultImageExt = ".jpg"
	defaultVideoExt = ".mp4"
	maxTrustedExt   = 4
)

// FileNames derives one deterministic name per url:
// YYYYMMDD_{post id}[_{ordinal}]{ext}. The 1-based ordinal only appears
// when the post carries more than one asset of the kind.
func FileNames(post models.Post, kind models.MediaKind, urls []string) []string {
	prefix := post.CreatedAt.In(models.ChinaTime).Format("20060102") + "_" + post.IDString()

	names := make([]string, len(urls))
	for i, u := range urls {
		ordinal := ""
		if len(urls) > 1 {
			ordinal = fmt.Sprintf("_%d", i+1)
		}
		names[i] = prefix + ordinal + Extension(u, kind)
	}
	return names
}

// Extension infers a file extension from an asset url. Images keep the
// url's own extension when it is at most four characters long; videos are
// .mov when the url says so and .mp4 otherwise.
func Extension(rawURL string, kind models.MediaKind) string {
	u := rawURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}

	if kind == models.MediaVideo {
		if strings.HasSuffix(strings.ToLower(u), ".mov") {
			return ".mov"
		}
		return defaultVideoExt
	}

	dot := strings.LastIndex(u, ".")
	if dot < 0 {
		return defaultImageExt
	}
	ext := u[dot+1:]
	if ext == "" || len(ext) > maxTrustedExt || strings.Contains(ext, "/") {
		return defaultImageExt
	}
	return "." + ext
}

// MimeType infers the upload content type from a file name
func MimeType(name string, kind models.MediaKind) string {
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		if t := mime.TypeByExtension(strings.ToLower(name[dot:])); t != "" {
			return t
		}
	}
	if kind == models.MediaVideo {
		return "video/mp4"
	}
	return "image/jpeg"
}

package objstore

import (
	"net/url"
	"strconv"
)

// The storage service renders on-the-fly transforms addressed by URL
// query parameters. Print and web preview use distinct transforms; the
// print variant must never be downsampled or recompressed below print
// quality.
const (
	printQuality   = 100
	previewQuality = 75
	previewWidth   = 640
)

// PrintURL returns the print-optimized transform of a stored object URL:
// full resolution, maximum quality, lossless-leaning encoding.
func PrintURL(objectURL string) string {
	return withParams(objectURL, map[string]string{
		"quality": strconv.Itoa(printQuality),
		"format":  "png",
	})
}

// PreviewURL returns the web-preview transform of a stored object URL.
func PreviewURL(objectURL string) string {
	return withParams(objectURL, map[string]string{
		"quality": strconv.Itoa(previewQuality),
		"width":   strconv.Itoa(previewWidth),
		"format":  "webp",
	})
}

func withParams(rawURL string, params map[string]string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

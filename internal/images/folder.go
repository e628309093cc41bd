package images

import (
	"fmt"
	"net/url"
	"strings"
)

// FolderName derives the per-page images folder from the source URL: the
// path with surrounding slashes trimmed and inner slashes replaced by
// underscores, or the host when the path is empty, suffixed with "_images".
func FolderName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	p := strings.Trim(u.EscapedPath(), "/")
	if p == "" {
		if u.Host == "" {
			return "", fmt.Errorf("url %q has neither path nor host", rawURL)
		}
		return u.Host + "_images", nil
	}
	return strings.ReplaceAll(p, "/", "_") + "_images", nil
}

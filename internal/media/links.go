// Package media recognizes supported links and indexes downloaded artifacts.
package media

import "regexp"

var linkPatterns = []*regexp.Regexp{
	// youtube
	regexp.MustCompile(`https?://(?:www\.)?youtube\.com/watch\?v=([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`https?://(?:www\.)?youtube\.com/playlist\?list=([a-zA-Z0-9_-]{34})`),
	regexp.MustCompile(`https?://(?:www\.)?youtube\.com/channel/([a-zA-Z0-9_-]{24})`),
	regexp.MustCompile(`https?://(?:www\.)?youtube\.com/user/([a-zA-Z0-9_-]{24})`),
	regexp.MustCompile(`https?://(?:www\.)?youtube\.com/c/([a-zA-Z0-9_-]{24})`),
	regexp.MustCompile(`https?://youtu\.be/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`https?://(?:www\.)?youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
	// youtube music
	regexp.MustCompile(`https?://music\.youtube\.com/playlist\?list=([a-zA-Z0-9_-]{34})`),
	regexp.MustCompile(`https?://music\.youtube\.com/channel/([a-zA-Z0-9_-]{24})`),
	regexp.MustCompile(`https?://music\.youtube\.com/user/([a-zA-Z0-9_-]{24})`),
	regexp.MustCompile(`https?://music\.youtube\.com/c/([a-zA-Z0-9_-]{24})`),
}

// Link is a supported URL found in a chat message.
type Link struct {
	URL string
	ID  string
}

// FindLink returns the first supported link in text.
func FindLink(text string) (Link, bool) {
	for _, re := range linkPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return Link{URL: m[0], ID: m[1]}, true
	}
	return Link{}, false
}

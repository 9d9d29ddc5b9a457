package bridge

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	mentionPattern = regexp.MustCompile(`@[\w.]+`)
	spacePattern   = regexp.MustCompile(`[ \t]+`)
)

const maxTitleLen = 50

// ExtractHashtags returns the lowercased, de-duplicated hashtags in caption without the leading '#'.
func ExtractHashtags(caption string) []string {
	matches := hashtagPattern.FindAllString(caption, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(strings.TrimPrefix(m, "#"))
		if seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// CleanCaption strips hashtags and mentions and collapses runs of spaces.
func CleanCaption(caption string) string {
	s := hashtagPattern.ReplaceAllString(caption, "")
	s = mentionPattern.ReplaceAllString(s, "")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// TitleFromCaption derives a title from the first line of the cleaned caption.
// Long lines are cut to 47 characters plus an ellipsis.
func TitleFromCaption(caption, platform string) string {
	clean := CleanCaption(caption)
	first, _, _ := strings.Cut(clean, "\n")
	first = strings.TrimSpace(first)
	if utf8.RuneCountInString(first) > maxTitleLen {
		runes := []rune(first)
		first = strings.TrimSpace(string(runes[:maxTitleLen-3])) + "..."
	}
	if first == "" {
		return platformLabel(platform) + " Video"
	}
	return first
}

func platformLabel(platform string) string {
	switch platform {
	case PlatformInstagram:
		return "Instagram"
	case PlatformTikTok:
		return "TikTok"
	case "":
		return "Untitled"
	default:
		return strings.ToUpper(platform[:1]) + platform[1:]
	}
}

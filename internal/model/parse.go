package model

import "strings"

// ParsePlatform maps a platform name to a Platform; unknown names map to PlatformOther.
func ParsePlatform(s string) Platform {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformInstagram:
		return PlatformInstagram
	case PlatformTikTok:
		return PlatformTikTok
	case PlatformFacebook:
		return PlatformFacebook
	}
	return PlatformOther
}

// ParseContentType maps a post type to a ContentType.
// Platform-specific names are folded (reel and short to video, image to photo); unknown maps to photo.
func ParseContentType(s string) ContentType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video", "reel", "reels", "short":
		return ContentVideo
	case "carousel", "album":
		return ContentCarousel
	case "story", "stories":
		return ContentStory
	}
	return ContentPhoto
}

// ParseAttributionType maps a name to an AttributionType; ok is false for unknown names.
func ParseAttributionType(s string) (AttributionType, bool) {
	t := AttributionType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

package utils

import "strings"

const defaultAppUserAgent = "ANDROID-com.pikcloud.pikpak/1.21.0"

func DefaultAppUserAgent() string {
	return defaultAppUserAgent
}

// NormalizeAppUserAgent keeps ua when it looks like the mobile app or a mobile browser
// and falls back to the default app UA otherwise.
func NormalizeAppUserAgent(ua string) string {
	v := strings.TrimSpace(ua)
	if v == "" {
		return defaultAppUserAgent
	}
	if looksLikeMobileUA(v) {
		return v
	}
	return defaultAppUserAgent
}

func looksLikeMobileUA(ua string) bool {
	s := strings.ToLower(ua)
	if strings.Contains(s, "pikpak") {
		return true
	}
	if strings.Contains(s, "mobile") {
		return true
	}
	if strings.Contains(s, "iphone") || strings.Contains(s, "android") || strings.Contains(s, "ipad") {
		return true
	}
	return false
}

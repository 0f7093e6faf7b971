package session

import (
	"strings"

	"github.com/mssola/useragent"
)

// DeviceType is the coarse device class of a visitor.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceBot     DeviceType = "bot"
	DeviceUnknown DeviceType = "unknown"
)

// DetectDevice classifies a User-Agent header.
func DetectDevice(userAgent string) DeviceType {
	if userAgent == "" || userAgent == Unknown {
		return DeviceUnknown
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return DeviceBot
	}
	platform := strings.ToLower(ua.Platform())
	os := strings.ToLower(ua.OS())
	switch {
	case strings.Contains(platform, "ipad"), strings.Contains(strings.ToLower(userAgent), "tablet"):
		return DeviceTablet
	case strings.Contains(os, "android") && !ua.Mobile():
		return DeviceTablet
	case ua.Mobile():
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

// IsBot reports whether userAgent identifies a crawler.
func IsBot(userAgent string) bool {
	return DetectDevice(userAgent) == DeviceBot
}

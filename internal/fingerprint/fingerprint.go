// Package fingerprint derives best-effort device labels from client
// environment signals. A fingerprint is spoofable and may collide; it names a
// device for slot accounting and is not an authentication factor.
package fingerprint

import (
	"encoding/base32"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	prefix    = "fp_"
	hashBytes = 10
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Signals are the environment characteristics a browser reports.
type Signals struct {
	UserAgent           string `json:"user_agent"`
	Language            string `json:"language"`
	ScreenWidth         int    `json:"screen_width"`
	ScreenHeight        int    `json:"screen_height"`
	ColorDepth          int    `json:"color_depth"`
	TimezoneOffset      int    `json:"timezone_offset"`
	HardwareConcurrency int    `json:"hardware_concurrency"`
}

// Empty reports whether no signal was provided.
func (s Signals) Empty() bool {
	return s == Signals{}
}

func (s Signals) canonical() string {
	return strings.Join([]string{
		strings.TrimSpace(s.UserAgent),
		strings.ToLower(strings.TrimSpace(s.Language)),
		fmt.Sprintf("%dx%dx%d", s.ScreenWidth, s.ScreenHeight, s.ColorDepth),
		fmt.Sprintf("%d", s.TimezoneOffset),
		fmt.Sprintf("%d", s.HardwareConcurrency),
	}, "|")
}

// Derive hashes signals into a short stable token.
func Derive(s Signals) string {
	h, _ := blake2b.New(hashBytes, nil)
	h.Write([]byte(s.canonical()))
	return prefix + strings.ToLower(encoding.EncodeToString(h.Sum(nil)))
}

// DeviceName infers a human readable label from a user agent.
func DeviceName(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return "Unknown Device"
	case strings.Contains(ua, "smart-tv"), strings.Contains(ua, "smarttv"),
		strings.Contains(ua, "tizen"), strings.Contains(ua, "webos"), strings.Contains(ua, "appletv"):
		return "Smart TV"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ipod"):
		return "iOS Device"
	case strings.Contains(ua, "android"):
		return "Android Device"
	case strings.Contains(ua, "macintosh"), strings.Contains(ua, "mac os x"):
		return "Mac"
	case strings.Contains(ua, "windows"):
		return "Windows PC"
	case strings.Contains(ua, "; cros "):
		return "Chromebook"
	case strings.Contains(ua, "linux"):
		return "Linux PC"
	default:
		return "Unknown Device"
	}
}

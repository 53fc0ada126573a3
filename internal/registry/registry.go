// Package registry resolves which channel and device a push should target.
package registry

import (
	"strings"

	"journal-notify/internal/domain"
)

// DetermineChannel picks the best (channel, device) pair for a user.
//
// Devices with empty tokens are ignored; per channel only the most recently
// registered device survives. An explicit channel preference wins when a
// matching device exists. On "auto" (or unset), Apple-looking platforms
// prefer the APNs channel; everything else prefers FCM; either falls back to
// whichever channel has any device. No device at all means no channel — a
// terminal condition for the caller.
func DetermineChannel(preference string, devices []domain.DeviceRegistration) (domain.Channel, *domain.DeviceRegistration) {
	best := map[domain.Channel]*domain.DeviceRegistration{}
	for i := range devices {
		d := &devices[i]
		if d.Token == "" {
			continue
		}
		if d.Channel != domain.ChannelFCM && d.Channel != domain.ChannelAPNs {
			continue
		}
		cur, ok := best[d.Channel]
		if !ok || d.RegisteredAt().After(cur.RegisteredAt()) {
			best[d.Channel] = d
		}
	}
	if len(best) == 0 {
		return domain.ChannelNone, nil
	}

	if pref := domain.Channel(preference); pref == domain.ChannelFCM || pref == domain.ChannelAPNs {
		if d, ok := best[pref]; ok {
			return pref, d
		}
	}

	order := []domain.Channel{domain.ChannelFCM, domain.ChannelAPNs}
	if d, ok := best[domain.ChannelAPNs]; ok && applePlatform(d.Platform) {
		order = []domain.Channel{domain.ChannelAPNs, domain.ChannelFCM}
	}
	for _, ch := range order {
		if d, ok := best[ch]; ok {
			return ch, d
		}
	}
	return domain.ChannelNone, nil
}

func applePlatform(platform string) bool {
	lower := strings.ToLower(platform)
	for _, marker := range []string{"ios", "ipad", "iphone", "macos", "darwin", "safari"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

package utils

import (
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`^(https?|ftp)://[^\s/$.?#].[^\s]*$`)

// WebSocketTargetPrefix marks notify targets delivered to the live websocket
// feed instead of a chat.
const WebSocketTargetPrefix = "ws:"

// IsURL returns true if the given string appears to be a URL
func IsURL(str string) bool {
	str = strings.ToLower(strings.TrimSpace(str))
	if strings.HasPrefix(str, "http://") || strings.HasPrefix(str, "https://") {
		return true
	}
	return urlPattern.MatchString(str)
}

func IsWebSocketTarget(target string) bool {
	return strings.HasPrefix(target, WebSocketTargetPrefix)
}

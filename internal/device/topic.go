package device

import (
	"fmt"
	"strconv"
	"strings"
)

// TopicRoot is the first segment of every bridge topic.
const TopicRoot = "ESERA"

// Topic returns ESERA/<contno>/<segment>/<key>.
func Topic(contno int, segment, key string) string {
	return prefix(contno) + segment + "/" + key
}

// StatusTopic carries the bridge's online/offline state.
func StatusTopic(contno int) string {
	return prefix(contno) + "status"
}

// HealthTopic carries the bridge's periodic health report.
func HealthTopic(contno int) string {
	return prefix(contno) + "health"
}

// SetTopicFilter matches every inbound command topic of a controller.
func SetTopicFilter(contno int) string {
	return prefix(contno) + "+/" + dirSet + "/+"
}

func prefix(contno int) string {
	return TopicRoot + "/" + strconv.Itoa(contno) + "/"
}

// ValidSegment checks that s can be used as a single topic level.
func ValidSegment(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(s, "/+#\x00") {
		return fmt.Errorf("%w: %q contains reserved characters", ErrInvalidName, s)
	}
	return nil
}

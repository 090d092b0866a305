package util

import "strings"

// Key prefixes owned by easycache. Delimiters are literal colons.
const (
	LockPrefix        = "LOCK:"
	IdempotencyPrefix = "idpt:"
	FilterBitsPrefix  = "bf:ns:"
	FilterCfgPrefix   = "bf:cfg:"
	QueuePrefix       = "mq:topic:im:"
	DelayQueuePrefix  = "mq:topic:delay:"
)

func LockKey(name string) string        { return LockPrefix + name }
func IdempotencyKey(name string) string { return IdempotencyPrefix + name }
func FilterBitsKey(ns string) string    { return FilterBitsPrefix + ns }
func FilterCfgKey(ns string) string     { return FilterCfgPrefix + ns }
func QueueKey(topic string) string      { return QueuePrefix + topic }
func DelayQueueKey(topic string) string { return DelayQueuePrefix + topic }

// Join prefixes key with ns and a colon. An empty ns leaves key untouched.
func Join(ns, key string) string {
	if ns == "" {
		return key
	}
	if strings.HasSuffix(ns, ":") {
		return ns + key
	}
	return ns + ":" + key
}

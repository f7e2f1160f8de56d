package mqtt

import "strings"

// DefaultTopicPrefix is the bus root used when no prefix is configured.
const DefaultTopicPrefix = "graylogic/bus"

// Topic segments below the prefix.
const (
	segmentInbox    = "dest"
	segmentNames    = "names"
	segmentPresence = "conn"
)

// Topics provides builders for bus topics under a configurable prefix.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Prefix: "graylogic/bus"}
//	inbox := topics.Inbox("iot.dmp.dimu")
//	// Returns: "graylogic/bus/dest/iot.dmp.dimu"
type Topics struct {
	Prefix string
}

// prefix returns the configured prefix without trailing slashes.
func (t Topics) prefix() string {
	p := strings.TrimRight(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// Inbox returns the topic messages addressed to name are published on.
// Both unique connection names and well-known names have an inbox.
//
// Example: graylogic/bus/dest/iot.device.idabc
func (t Topics) Inbox(name string) string {
	return t.prefix() + "/" + segmentInbox + "/" + name
}

// NameOwner returns the retained topic recording which connection owns a
// well-known name.
//
// Example: graylogic/bus/names/iot.driver.idled
func (t Topics) NameOwner(name string) string {
	return t.prefix() + "/" + segmentNames + "/" + name
}

// Presence returns the retained topic marking a connection alive. The
// connection's Last Will clears it.
//
// Example: graylogic/bus/conn/3f2a...
func (t Topics) Presence(uniqueName string) string {
	return t.prefix() + "/" + segmentPresence + "/" + uniqueName
}

// NameFromTopic returns the last segment of a bus topic.
func NameFromTopic(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

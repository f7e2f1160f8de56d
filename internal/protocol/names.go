package protocol

import (
	"strings"
	"unicode/utf8"
)

// Device-management daemon.
const (
	DaemonName = "iot.dmp.dimu"

	MethodRegisterDevice   = "registerDevice"
	MethodUnregisterDevice = "unregisterDevice"
	MethodShutdownDevice   = "shutdownDevice"
	MethodStartupDevice    = "startupDevice"
	MethodRegisterDriver   = "registerDriver"
	MethodUnregisterDriver = "unregisterDriver"
	MethodConnect          = "connect"
	MethodDisconnect       = "disconnect"
)

// Subscription service receiving property and event signals.
const SubscriptionName = "iot.dmp.subscribe"

// Gateway watchdog.
const (
	WatchdogName       = "iot.gateway.watchdog"
	SignalFeedWatchdog = "feedDog"
)

// Configuration manager.
const (
	ConfigManagerName = "iot.dmp.configmanager"

	MethodGetConfig       = "get_config"
	MethodSubscribeConfig = "subscribe_config"
	MethodNotifyConfig    = "notify_config"

	// ConfigObserver is the subscribe_config subscriber type for read-only observers.
	ConfigObserver = 1
)

// Configuration key prefixes.
const (
	ConfigKeyDriver    = "gw_driverconfig_"
	ConfigKeyTSL       = "gw_TSL_"
	ConfigKeyTSLConfig = "gw_TSL_config_"
)

// Device objects.
const (
	DeviceNamePrefix = "iot.device.id"
	DevicePathPrefix = "/iot/device/id"

	SignalPropertiesChanged = "propertiesChanged"

	MethodCallServices        = "callServices"
	MethodIntrospect          = "Introspect"
	MethodConnectResultNotify = "connectResultNotify"

	ServiceGet = "get"
	ServiceSet = "set"
)

// Driver objects.
const (
	DriverNamePrefix = "iot.driver.id"
	DriverPathPrefix = "/iot/driver/id"

	MethodGetDeviceList = "getDeviceList"

	DeviceListOnline  = "deviceState=online"
	DeviceListOffline = "deviceState=offline"
)

// PropertiesInterface is the standard properties interface; calls on it are
// acknowledged with an empty reply.
const PropertiesInterface = "org.freedesktop.DBus.Properties"

// DeviceName returns the well-known name of a device.
func DeviceName(cloudID string) string {
	return DeviceNamePrefix + cloudID
}

// DriverName returns the well-known name of a driver module.
func DriverName(module string) string {
	return DriverNamePrefix + module
}

// NameToPath converts a well-known name to its object path by replacing dots
// with slashes and prefixing a slash.
func NameToPath(name string) string {
	return "/" + strings.ReplaceAll(name, ".", "/")
}

// ValidateText checks that s is non-empty, valid UTF-8 text.
func ValidateText(field, s string) error {
	if s == "" {
		return Errorf(InvalidParam, "%s is empty", field)
	}
	if !utf8.ValidString(s) {
		return Errorf(InvalidParam, "%s is not valid UTF-8", field)
	}
	return nil
}

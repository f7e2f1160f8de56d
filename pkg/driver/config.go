package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/registry"
)

// Members of a driver configuration document.
const (
	configMemberDriver  = "config"
	configMemberDevices = "deviceList"
)

// Configuration getters follow a size-then-fill pattern: the Size call
// returns the buffer length needed for the value and a terminating zero
// byte, or 0 when the value cannot be read; the fill call copies the value
// into buf and fails with INVALID_PARAM when buf is too short.

// ConfigInfoSize returns the buffer size needed for configuration key.
func (d *Driver) ConfigInfoSize(ctx context.Context, key string) int {
	return size(d.configValue(ctx, key))
}

// ConfigInfo copies configuration key into buf.
func (d *Driver) ConfigInfo(ctx context.Context, key string, buf []byte) error {
	value, err := d.configValue(ctx, key)
	if err != nil {
		return err
	}
	return fill(buf, value)
}

// ConfigSize returns the buffer size needed for the configuration of
// driver module.
func (d *Driver) ConfigSize(ctx context.Context, module string) int {
	return size(d.driverConfig(ctx, module))
}

// Config copies the configuration of driver module into buf.
func (d *Driver) Config(ctx context.Context, module string, buf []byte) error {
	value, err := d.driverConfig(ctx, module)
	if err != nil {
		return err
	}
	return fill(buf, value)
}

// TSLSize returns the buffer size needed for the product model of
// productKey.
func (d *Driver) TSLSize(ctx context.Context, productKey string) int {
	return size(d.productTSL(ctx, productKey))
}

// TSL copies the product model of productKey into buf.
func (d *Driver) TSL(ctx context.Context, productKey string, buf []byte) error {
	value, err := d.productTSL(ctx, productKey)
	if err != nil {
		return err
	}
	return fill(buf, value)
}

// TSLConfigSize returns the buffer size needed for the device
// configuration of productKey.
func (d *Driver) TSLConfigSize(ctx context.Context, productKey string) int {
	return size(d.tslConfig(ctx, productKey))
}

// TSLConfig copies the device configuration of productKey into buf.
func (d *Driver) TSLConfig(ctx context.Context, productKey string, buf []byte) error {
	value, err := d.tslConfig(ctx, productKey)
	if err != nil {
		return err
	}
	return fill(buf, value)
}

// DeviceInfoSize returns the buffer size needed for the device list of this
// driver's configuration.
func (d *Driver) DeviceInfoSize(ctx context.Context) int {
	return size(d.configMember(ctx, configMemberDevices))
}

// DeviceInfo copies the device list of this driver's configuration into buf.
func (d *Driver) DeviceInfo(ctx context.Context, buf []byte) error {
	value, err := d.configMember(ctx, configMemberDevices)
	if err != nil {
		return err
	}
	return fill(buf, value)
}

// DriverInfoSize returns the buffer size needed for the driver settings of
// this driver's configuration.
func (d *Driver) DriverInfoSize(ctx context.Context) int {
	return size(d.configMember(ctx, configMemberDriver))
}

// DriverInfo copies the driver settings of this driver's configuration into
// buf.
func (d *Driver) DriverInfo(ctx context.Context, buf []byte) error {
	value, err := d.configMember(ctx, configMemberDriver)
	if err != nil {
		return err
	}
	return fill(buf, value)
}

// RegisterConfigChangedCallback subscribes to configuration changes of
// driver module. A later registration for the same module replaces the
// callback.
//
// The callback runs on the worker pool. Its result is returned to the
// configuration manager.
func (d *Driver) RegisterConfigChangedCallback(ctx context.Context, module string, cb ConfigChangedFunc) error {
	if err := protocol.ValidateText("module name", module); err != nil {
		return err
	}
	if cb == nil {
		return protocol.NewError(protocol.InvalidParam, "config callback is nil")
	}

	env, err := d.call(ctx, protocol.ConfigManagerName, protocol.MethodSubscribeConfig,
		protocol.DriverName(d.module), protocol.ConfigKeyDriver+module, int32(protocol.ConfigObserver))
	if err != nil {
		return err
	}
	if env.Code != protocol.Success {
		d.logger.Warn("config subscription refused", "module", module, "code", int(env.Code))
		return env.Err()
	}

	d.subs.Set(module, registry.ConfigChangedFunc(cb))
	d.logger.Info("config subscription registered", "module", module)
	return nil
}

// configValue reads configuration key from the configuration manager.
func (d *Driver) configValue(ctx context.Context, key string) (string, error) {
	if err := protocol.ValidateText("config key", key); err != nil {
		return "", err
	}
	env, err := d.callOK(ctx, protocol.ConfigManagerName, protocol.MethodGetConfig, key)
	if err != nil {
		return "", err
	}
	text := env.ParamsText()
	if text == "" {
		return "", callFailed(protocol.MethodGetConfig, errors.New("empty config value for "+key))
	}
	return text, nil
}

func (d *Driver) driverConfig(ctx context.Context, module string) (string, error) {
	if err := protocol.ValidateText("module name", module); err != nil {
		return "", err
	}
	return d.configValue(ctx, protocol.ConfigKeyDriver+module)
}

func (d *Driver) tslConfig(ctx context.Context, productKey string) (string, error) {
	if err := protocol.ValidateText("product key", productKey); err != nil {
		return "", err
	}
	return d.configValue(ctx, protocol.ConfigKeyTSLConfig+productKey)
}

// productTSL serves a product model through the cache.
func (d *Driver) productTSL(ctx context.Context, productKey string) (string, error) {
	if err := protocol.ValidateText("product key", productKey); err != nil {
		return "", err
	}
	return d.tsl.Raw(ctx, productKey)
}

// fetchTSL is the cache's fetcher for product models.
func (d *Driver) fetchTSL(ctx context.Context, productKey string) (string, error) {
	return d.configValue(ctx, protocol.ConfigKeyTSL+productKey)
}

// configMember returns one member of this driver's configuration document.
// A string member is returned as its content, any other value as compact
// JSON.
func (d *Driver) configMember(ctx context.Context, name string) (string, error) {
	doc, err := d.driverConfig(ctx, d.module)
	if err != nil {
		return "", err
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc), &members); err != nil {
		return "", protocol.Errorf(protocol.InvalidJSON, "driver config: %v", err)
	}
	raw, ok := members[name]
	if !ok {
		return "", protocol.Errorf(protocol.Unknown, "driver config has no %q member", name)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", protocol.Errorf(protocol.InvalidJSON, "driver config member %q: %v", name, err)
	}
	return buf.String(), nil
}

// size returns the buffer length needed for value, or 0 on err.
func size(value string, err error) int {
	if err != nil || value == "" {
		return 0
	}
	return len(value) + 1
}

// fill copies value and a terminating zero byte into buf.
func fill(buf []byte, value string) error {
	if len(buf) == 0 {
		return protocol.NewError(protocol.InvalidParam, "buffer is empty")
	}
	if len(buf) < len(value)+1 {
		return protocol.Errorf(protocol.InvalidParam, "buffer of %d bytes is shorter than %d", len(buf), len(value)+1)
	}
	copy(buf, value)
	buf[len(value)] = 0
	return nil
}

// BufferText returns the text a getter filled into buf, without the
// terminating zero byte.
func BufferText(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}

package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/bus"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/registry"
)

// serviceCall is one callServices invocation queued on the worker pool.
type serviceCall struct {
	msg     *bus.Message
	cloudID string
	service string
	params  string
}

// serviceResult is the params body of a custom service reply.
type serviceResult struct {
	Code    protocol.Code   `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// execute runs call on a worker and sends the reply.
func (d *Dispatcher) execute(call serviceCall) {
	env := d.invoke(call)
	d.logger.Debug("device call finished",
		"cloud_id", call.cloudID,
		"service", call.service,
		"serial", call.msg.Serial,
		"code", int(env.Code),
	)
	d.reply(call.msg, env.String())
}

// invoke resolves the device again, since it may have been removed while
// the call was queued, and runs the matching callback.
func (d *Dispatcher) invoke(call serviceCall) protocol.Envelope {
	dev, ok := d.registry.ByCloudID(call.cloudID)
	if !ok {
		return protocol.Reply(protocol.InvalidParam, nil)
	}

	req, err := protocol.ParseRequest([]byte(call.params))
	if err != nil {
		return protocol.ReplyErr(err)
	}

	switch call.service {
	case protocol.ServiceGet:
		return d.getProperties(dev, req)
	case protocol.ServiceSet:
		return d.setProperties(dev, req)
	default:
		return d.callService(dev, call.service, req)
	}
}

// getProperties reads the requested property names. Keys are pre-typed
// from the product model; the callback fills values and may correct types.
func (d *Dispatcher) getProperties(dev registry.Device, req protocol.Request) protocol.Envelope {
	props, err := protocol.Decode(req.Params, nil)
	if err != nil {
		return protocol.ReplyErr(err)
	}
	if len(props) == 0 {
		return protocol.Reply(protocol.InvalidParam, nil)
	}

	if tsl := d.productModel(dev.ProductKey); tsl != nil {
		for i := range props {
			props[i].Type = tsl.PropertyType(props[i].Key)
		}
	}

	if err := safeCallback(func() error {
		return dev.Callbacks.GetProperties(dev.Handle, props, dev.UserData)
	}); err != nil {
		d.logger.Debug("get properties callback failed", "cloud_id", dev.CloudID, "error", err)
		return protocol.ReplyErr(err)
	}

	params, err := protocol.Encode(props)
	if err != nil {
		d.logger.Warn("encoding properties", "cloud_id", dev.CloudID, "error", err)
		return protocol.ReplyErr(err)
	}
	return protocol.Reply(protocol.Success, params)
}

// setProperties applies a property object typed by the "set" service.
func (d *Dispatcher) setProperties(dev registry.Device, req protocol.Request) protocol.Envelope {
	props, err := protocol.Decode(req.Params, d.productModel(dev.ProductKey).ServiceLookup(protocol.ServiceSet))
	if err != nil {
		return protocol.ReplyErr(err)
	}
	if len(props) == 0 {
		return protocol.Reply(protocol.InvalidParam, nil)
	}

	err = safeCallback(func() error {
		return dev.Callbacks.SetProperties(dev.Handle, props, dev.UserData)
	})
	return protocol.ReplyErr(err)
}

// callService runs a custom service. Output slots start untyped; the
// reply carries every slot up to the first one the callback left untyped.
func (d *Dispatcher) callService(dev registry.Device, service string, req protocol.Request) protocol.Envelope {
	input, err := protocol.Decode(req.Params, d.productModel(dev.ProductKey).ServiceLookup(service))
	if err != nil {
		return protocol.ReplyErr(err)
	}

	output := make([]protocol.DeviceData, dev.Callbacks.ServiceOutputMaxCount)
	for i := range output {
		output[i].Type = protocol.TypeUnknown
	}

	err = safeCallback(func() error {
		return dev.Callbacks.CallService(dev.Handle, service, input, output, dev.UserData)
	})
	code := protocol.CodeOf(err)

	filled := 0
	for filled < len(output) && output[filled].Type != protocol.TypeUnknown {
		filled++
	}
	data, encErr := protocol.Encode(output[:filled])
	if encErr != nil {
		d.logger.Warn("encoding service output", "cloud_id", dev.CloudID, "service", service, "error", encErr)
		data = nil
	}
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	result, _ := json.Marshal(serviceResult{Code: code, Message: code.Message(), Data: data}) //nolint:errcheck // data is valid JSON
	return protocol.Reply(code, result)
}

// productModel returns the cached product model, or nil when it cannot be
// resolved. A nil model leaves input untyped.
func (d *Dispatcher) productModel(productKey string) *protocol.TSL {
	if d.tsl == nil {
		return nil
	}
	tsl, err := d.tsl.TSL(d.ctx, productKey)
	if err != nil {
		d.logger.Debug("product model unavailable", "product_key", productKey, "error", err)
		return nil
	}
	return tsl
}

// safeCallback runs a driver callback, turning a panic into an UNKNOWN
// error so the caller still gets a reply.
func safeCallback(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = protocol.NewError(protocol.Unknown, fmt.Sprintf("callback panic: %v", r))
		}
	}()
	return fn()
}

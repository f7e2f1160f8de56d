package driver

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/bus"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
)

// call sends a method call to the service owning dest and waits for its
// reply envelope.
//
// Transport failures, timeouts, error replies and malformed envelopes all
// surface as UNKNOWN. A well-formed envelope is returned as is, whatever
// its code.
func (d *Driver) call(ctx context.Context, dest, member string, args ...any) (protocol.Envelope, error) {
	if !d.running() {
		return protocol.Envelope{}, callFailed(member, errStopped)
	}

	msg, err := bus.NewMethodCall(dest, protocol.NameToPath(dest), dest, member, args...)
	if err != nil {
		return protocol.Envelope{}, callFailed(member, err)
	}
	serial, err := d.conn.Send(msg)
	if err != nil {
		return protocol.Envelope{}, callFailed(member, err)
	}
	d.correlator.Register(serial)

	reply, err := d.correlator.Await(ctx, serial, d.callTimeout)
	if err != nil {
		d.logger.Warn("daemon call failed", "destination", dest, "member", member, "serial", serial, "error", err)
		return protocol.Envelope{}, callFailed(member, err)
	}
	if reply.Type == bus.TypeError {
		return protocol.Envelope{}, callFailed(member, fmt.Errorf("%s: %s", reply.ErrorName, reply.ErrorText()))
	}

	text, err := reply.ArgString(0)
	if err != nil {
		return protocol.Envelope{}, callFailed(member, err)
	}
	env, err := protocol.ParseEnvelope([]byte(text))
	if err != nil {
		return protocol.Envelope{}, callFailed(member, err)
	}

	d.logger.Debug("daemon call returned", "member", member, "serial", serial, "code", int(env.Code))
	return env, nil
}

// callOK is call with a non-success envelope reported as UNKNOWN.
func (d *Driver) callOK(ctx context.Context, dest, member string, args ...any) (protocol.Envelope, error) {
	env, err := d.call(ctx, dest, member, args...)
	if err != nil {
		return env, err
	}
	if env.Code != protocol.Success {
		return env, callFailed(member, env.Err())
	}
	return env, nil
}

// callDaemon calls a device-management daemon method with a JSON body.
func (d *Driver) callDaemon(ctx context.Context, member, body string) (protocol.Envelope, error) {
	return d.callOK(ctx, protocol.DaemonName, member, body)
}

// signal sends a signal from the object at path.
func (d *Driver) signal(dest, path, iface, member string, args ...any) error {
	msg, err := bus.NewSignal(dest, path, iface, member, args...)
	if err != nil {
		return err
	}
	_, err = d.conn.Send(msg)
	return err
}

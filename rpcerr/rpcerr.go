// Package rpcerr defines the error taxonomy shared across the schema, wire,
// framer, reactor, sockconn and channel packages.
package rpcerr

import "fmt"

// SchemaError reports a problem in a schema's shape: unknown or duplicate
// field, cyclic inheritance, a Variant used where it isn't allowed.
type SchemaError struct {
	Msg string
}

func (e *SchemaError) Error() string { return "schema error: " + e.Msg }

func NewSchemaError(format string, args ...any) *SchemaError {
	return &SchemaError{Msg: fmt.Sprintf(format, args...)}
}

// TypeError reports an assignment of a value incompatible with the
// declared type kind.
type TypeError struct {
	Field string
	Msg   string
}

func (e *TypeError) Error() string {
	if e.Field == "" {
		return "type error: " + e.Msg
	}
	return fmt.Sprintf("type error on field %q: %s", e.Field, e.Msg)
}

func NewTypeError(field, format string, args ...any) *TypeError {
	return &TypeError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// RangeError reports a scalar overflow/underflow, a String byte_size
// overflow, or a fixed-size array overflow.
type RangeError struct {
	Field string
	Msg   string
}

func (e *RangeError) Error() string {
	if e.Field == "" {
		return "range error: " + e.Msg
	}
	return fmt.Sprintf("range error on field %q: %s", e.Field, e.Msg)
}

func NewRangeError(field, format string, args ...any) *RangeError {
	return &RangeError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// UninitializedFieldError reports a required field with no value, no
// default, and no optional flag at encode time.
type UninitializedFieldError struct {
	Field string
}

func (e *UninitializedFieldError) Error() string {
	return fmt.Sprintf("field %q is required but was never assigned", e.Field)
}

// EncodeError wraps a codec-internal failure during encode: an unsupported
// type for the codec (e.g. Map under Binary), or an inconsistent schema.
type EncodeError struct {
	Codec string
	Msg   string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("%s encode error: %s", e.Codec, e.Msg)
}

func NewEncodeError(codec, format string, args ...any) *EncodeError {
	return &EncodeError{Codec: codec, Msg: fmt.Sprintf(format, args...)}
}

// DecodeError wraps a codec-internal failure during decode: an unexpected
// tag, truncated input, or an unsupported type for the codec.
type DecodeError struct {
	Codec string
	Msg   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s decode error: %s", e.Codec, e.Msg)
}

func NewDecodeError(codec, format string, args ...any) *DecodeError {
	return &DecodeError{Codec: codec, Msg: fmt.Sprintf(format, args...)}
}

// FramingError reports an inconsistent length_field value or a negative
// size-ref encountered while framing a packet.
type FramingError struct {
	Msg string
}

func (e *FramingError) Error() string { return "framing error: " + e.Msg }

func NewFramingError(format string, args ...any) *FramingError {
	return &FramingError{Msg: fmt.Sprintf(format, args...)}
}

// ConnectTimeoutError is returned when Socket Channel's connect latch does
// not fire within connect_timeout.
type ConnectTimeoutError struct {
	Host    string
	Port    int
	Timeout string
}

func (e *ConnectTimeoutError) Error() string {
	return fmt.Sprintf("connect %s:%d timed out after %s", e.Host, e.Port, e.Timeout)
}

// ResponseTimeoutError is returned when a pending request's waiter does not
// fire within its request timeout.
type ResponseTimeoutError struct {
	SeqKey  string
	Timeout string
}

func (e *ResponseTimeoutError) Error() string {
	return fmt.Sprintf("no response for sequence key=%s within %s", e.SeqKey, e.Timeout)
}

// ConnectionLostError is returned to every outstanding waiter when the peer
// resets the connection or a fatal socket-level error occurs.
type ConnectionLostError struct {
	Cause error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause == nil {
		return "connection lost"
	}
	return "connection lost: " + e.Cause.Error()
}

func (e *ConnectionLostError) Unwrap() error { return e.Cause }

// ProtocolError reports unsolicited data that cannot be parsed as a
// response for the owning channel; callers log and drop.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "protocol error: " + e.Msg }

func NewProtocolError(format string, args ...any) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

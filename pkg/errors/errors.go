package errors

import (
	"fmt"
	"time"
)

type ConfigError struct {
	ConnectionName string
	Reason         string
}

func (e *ConfigError) Error() string {
	if e.ConnectionName == "" {
		return fmt.Sprintf("Invalid gateway client configuration: %s", e.Reason)
	}
	return fmt.Sprintf("Invalid gateway client configuration for connection '%s': %s", e.ConnectionName, e.Reason)
}

type DirectoryUnavailable struct {
	RegisterAddresses []string
	Err               error
}

func (e *DirectoryUnavailable) Error() string {
	return fmt.Sprintf("No register endpoint reachable (tried %v): %v", e.RegisterAddresses, e.Err)
}

func (e *DirectoryUnavailable) Unwrap() error {
	return e.Err
}

type DirectoryProtocolError struct {
	RegisterAddress string
	Reply           string
	Err             error
}

func (e *DirectoryProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Bad reply from register %s (reply=%q): %v", e.RegisterAddress, e.Reply, e.Err)
	}
	return fmt.Sprintf("Bad reply from register %s (reply=%q)", e.RegisterAddress, e.Reply)
}

func (e *DirectoryProtocolError) Unwrap() error {
	return e.Err
}

// MalformedFrame is returned when a buffer is too short for the frame it claims to hold
type MalformedFrame struct {
	MessageName string
	MsgSize     int
	MinimumSize int
}

func (e *MalformedFrame) Error() string {
	return fmt.Sprintf("Frame parsing underflowed (type=%s), provided %d bytes, needed at least %d", e.MessageName, e.MsgSize, e.MinimumSize)
}

type InvalidIdentity struct {
	ClientId string
	Reason   string
}

func (e *InvalidIdentity) Error() string {
	return fmt.Sprintf("client_id %q is invalid: %s", e.ClientId, e.Reason)
}

type ConnectFailure struct {
	Address string
	Err     error
}

func (e *ConnectFailure) Error() string {
	return fmt.Sprintf("Can not connect to tcp://%s: %v", e.Address, e.Err)
}

func (e *ConnectFailure) Unwrap() error {
	return e.Err
}

type RemoteClosed struct {
	Address  string
	Received int
}

func (e *RemoteClosed) Error() string {
	return fmt.Sprintf("Connection closed by tcp://%s after %d bytes, before a full reply was received", e.Address, e.Received)
}

type Timeout struct {
	Address  string
	Deadline time.Duration
	Received int
}

func (e *Timeout) Error() string {
	return fmt.Sprintf("No full reply from tcp://%s within %s (%d bytes received)", e.Address, e.Deadline, e.Received)
}

type MissingRequestContext struct {
	Operation string
}

func (e *MissingRequestContext) Error() string {
	return fmt.Sprintf("%s targets the current client but no request context is attached", e.Operation)
}

type CodecError struct {
	Codec  string
	Offset int
	Reason string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("Codec %s failed at offset %d: %s", e.Codec, e.Offset, e.Reason)
}

type InvalidEnumValue struct {
	EnumName string
	IntValue uint8
}

func (e *InvalidEnumValue) Error() string {
	return fmt.Sprintf("Invalid enum value=%d (enum: %s)", e.IntValue, e.EnumName)
}

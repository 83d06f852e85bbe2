package config

import "fmt"

// ReadError is returned when the config sources cannot be read or merged.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("error while reading config: %v", e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// DeserializationError is returned when the merged config tree does not
// match the typed schema.
type DeserializationError struct {
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("error while deserializing config: %v", e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// TomlError is returned when the config tree cannot be serialized to TOML.
type TomlError struct {
	Err error
}

func (e *TomlError) Error() string {
	return fmt.Sprintf("error while serializing to toml: %v", e.Err)
}

func (e *TomlError) Unwrap() error { return e.Err }

// WriteError is returned when the serialized config cannot be written out.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("error while writing config: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// AlreadyExistingConfig is returned by the write path when the target file
// exists and replacing was not requested.
type AlreadyExistingConfig struct {
	Path string
}

func (e *AlreadyExistingConfig) Error() string {
	return fmt.Sprintf("a config file already exists in %s", e.Path)
}

// BadBootstrapPeerFormat is returned when a bootstrap peer multiaddress is
// missing its trailing /p2p/ segment or the segment cannot be decoded.
type BadBootstrapPeerFormat struct {
	Text string
}

func (e *BadBootstrapPeerFormat) Error() string {
	return fmt.Sprintf(
		"bootstrap peer %s is not valid, format needs to be {protocol}/{ip}/tcp/{port}/p2p/{peerid}",
		e.Text,
	)
}

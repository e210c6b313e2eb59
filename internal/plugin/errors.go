package plugin

import "github.com/pkg/errors"

// Error categories. Implementations wrap these so hosts can classify
// failures with errors.Is.
var (
	// ErrConfig reports bad construction attributes.
	ErrConfig = errors.New("invalid plugin configuration")
	// ErrCorrupt reports serialized plugin state that cannot be decoded.
	ErrCorrupt = errors.New("corrupt serialized plugin")
	// ErrContract reports a host calling the plugin out of contract
	// (wrong index, wrong arity, wrong lifecycle state).
	ErrContract = errors.New("plugin contract violation")
	// ErrNotFound reports a registry lookup miss.
	ErrNotFound = errors.New("plugin creator not found")
)

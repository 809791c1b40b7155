package launcher

import (
	"fmt"
	"strconv"
	"strings"
)

// Reserved configuration keys. These are always set by the orchestrator
// and win over any caller-supplied value.
const (
	KeyAddress         = "server.address"
	KeyPort            = "server.port"
	KeyHeadless        = "server.headless"
	KeyDevelopmentMode = "global.developmentMode"
)

// ReservedKeys lists the configuration keys the application owns, in the
// order they appear in the emitted argument list.
func ReservedKeys() []string {
	return []string{KeyAddress, KeyPort, KeyHeadless, KeyDevelopmentMode}
}

// Options is an ordered set of string key/value configuration entries.
// Insertion order is preserved so the emitted argument list is
// reproducible. Setting an existing key updates it in place.
type Options struct {
	keys   []string
	values map[string]string
}

// NewOptions returns an empty ordered option set.
func NewOptions() *Options {
	return &Options{values: make(map[string]string)}
}

// Set adds or updates an entry. New keys are appended at the end.
func (o *Options) Set(key, value string) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Get returns the value for key and whether it is present.
func (o *Options) Get(key string) (string, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Options) Has(key string) bool {
	_, ok := o.values[key]
	return ok
}

// Len returns the number of entries.
func (o *Options) Len() int {
	return len(o.keys)
}

// Keys returns the keys in insertion order.
func (o *Options) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Args renders the set as "--key=value" flags in insertion order.
func (o *Options) Args() []string {
	args := make([]string, 0, len(o.keys))
	for _, k := range o.keys {
		args = append(args, fmt.Sprintf("--%s=%s", k, o.values[k]))
	}
	return args
}

// Clone returns an independent copy preserving order.
func (o *Options) Clone() *Options {
	c := NewOptions()
	for _, k := range o.keys {
		c.Set(k, o.values[k])
	}
	return c
}

// ParseArgs builds an Options set from raw command-line tokens. Both
// "--key=value" and "--key value" forms are accepted; a flag without a
// value is recorded as "true".
func ParseArgs(args []string) (*Options, error) {
	opts := NewOptions()
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument %q: options must start with --", arg)
		}
		body := strings.TrimPrefix(arg, "--")
		if body == "" {
			return nil, fmt.Errorf("empty option name in %q", arg)
		}
		if key, value, ok := strings.Cut(body, "="); ok {
			opts.Set(key, value)
			continue
		}
		// "--key value" form, unless the next token is another flag.
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			opts.Set(body, args[i+1])
			i++
			continue
		}
		opts.Set(body, "true")
	}
	return opts, nil
}

// Merge builds the final configuration set for a launch: the reserved
// entries come first and always win, followed by the caller's entries in
// their original order. Caller entries that collide with a reserved key
// are dropped and returned in overridden so the caller can be warned.
func Merge(user *Options, port int) (merged *Options, overridden []string) {
	merged = NewOptions()
	merged.Set(KeyAddress, "localhost")
	merged.Set(KeyPort, strconv.Itoa(port))
	merged.Set(KeyHeadless, "true")
	merged.Set(KeyDevelopmentMode, "false")

	if user == nil {
		return merged, nil
	}
	for _, k := range user.keys {
		if merged.Has(k) {
			overridden = append(overridden, k)
			continue
		}
		merged.Set(k, user.values[k])
	}
	return merged, overridden
}

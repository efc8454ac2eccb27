package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// RedefineRegistry manages named redefine functions so collection manifests
// can reference them without compiling code. Built-ins are registered on
// construction; callers may add their own.
type RedefineRegistry struct {
	mu    sync.RWMutex
	funcs map[string]RedefineFunc
}

// NewRedefineRegistry creates a registry pre-populated with the built-in
// redefine functions
func NewRedefineRegistry() *RedefineRegistry {
	r := &RedefineRegistry{
		funcs: make(map[string]RedefineFunc),
	}
	for name, fn := range builtinRedefines() {
		r.funcs[name] = fn
	}
	return r
}

// Register adds or replaces a named redefine function
func (r *RedefineRegistry) Register(name string, fn RedefineFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Get retrieves a redefine function by name
func (r *RedefineRegistry) Get(name string) (RedefineFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, exists := r.funcs[name]
	if !exists {
		return nil, fmt.Errorf("redefine function not found: %s", name)
	}
	return fn, nil
}

// Names returns the registered function names in sorted order
func (r *RedefineRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func builtinRedefines() map[string]RedefineFunc {
	return map[string]RedefineFunc{
		"uppercase": func(old interface{}, _ Record) (interface{}, error) {
			s, err := asString(old)
			if err != nil {
				return nil, err
			}
			return strings.ToUpper(s), nil
		},
		"lowercase": func(old interface{}, _ Record) (interface{}, error) {
			s, err := asString(old)
			if err != nil {
				return nil, err
			}
			return strings.ToLower(s), nil
		},
		"trim": func(old interface{}, _ Record) (interface{}, error) {
			s, err := asString(old)
			if err != nil {
				return nil, err
			}
			return strings.TrimSpace(s), nil
		},
		"to_string": func(old interface{}, _ Record) (interface{}, error) {
			return fmt.Sprintf("%v", old), nil
		},
		"epoch_to_rfc3339": func(old interface{}, _ Record) (interface{}, error) {
			var epoch int64
			switch v := old.(type) {
			case int64:
				epoch = v
			case int:
				epoch = int64(v)
			case int32:
				epoch = int64(v)
			case float64:
				epoch = int64(v)
			default:
				return nil, fmt.Errorf("expected numeric epoch, got %T", old)
			}
			return time.Unix(epoch, 0).UTC().Format(time.RFC3339), nil
		},
		"json_encode": func(old interface{}, _ Record) (interface{}, error) {
			encoded, err := json.Marshal(old)
			if err != nil {
				return nil, fmt.Errorf("value is not JSON-encodable: %w", err)
			}
			return string(encoded), nil
		},
	}
}

func asString(value interface{}) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", value)
	}
	return s, nil
}

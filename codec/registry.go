package codec

import (
	"fmt"
	"sync"
)

var (
	codecs = map[string]Codec{
		"json": NewJSONCodec(),
	}
	mutex sync.RWMutex
)

// Get returns a registered Codec by name. Pre-registered: "json".
func Get(name string) (Codec, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	c, exists := codecs[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
	}
	return c, nil
}

// Register adds or replaces a named codec in the global registry.
func Register(name string, c Codec) {
	mutex.Lock()
	defer mutex.Unlock()

	codecs[name] = c
}

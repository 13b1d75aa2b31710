package armemu

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blacktop/go-armemu/engine"
	"github.com/blacktop/go-armemu/internal/softcore"
)

// DefaultEngine is the pure Go engine that is always registered.
const DefaultEngine = softcore.Name

func init() {
	engine.Register(softcore.New())
}

type loadState struct {
	mu   sync.Mutex
	done bool
	err  error
}

var loads sync.Map // engine name -> *loadState

// Init loads the named engine for this process. It is safe to call more than
// once; the engine's Load runs only the first time and its result is returned
// on every later call. New fails with ErrEngineNotLoaded until Init has
// succeeded for the engine it selects.
func Init(name string) error {
	if name == "" {
		name = DefaultEngine
	}
	e, ok := engine.Lookup(name)
	if !ok {
		return fmt.Errorf("%w %q (registered: %s)", ErrUnknownEngine, name, strings.Join(engine.Names(), ", "))
	}
	v, _ := loads.LoadOrStore(name, &loadState{})
	ls := v.(*loadState)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if !ls.done {
		if err := e.Load(); err != nil {
			ls.err = fmt.Errorf("armemu: load engine %q: %w", name, err)
		}
		ls.done = true
	}
	return ls.err
}

// Engines lists the registered engine names.
func Engines() []string {
	return engine.Names()
}

func loadedEngine(name string) (engine.Engine, error) {
	e, ok := engine.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownEngine, name)
	}
	v, ok := loads.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (call armemu.Init first)", ErrEngineNotLoaded, name)
	}
	ls := v.(*loadState)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if !ls.done {
		return nil, fmt.Errorf("%w: %q", ErrEngineNotLoaded, name)
	}
	if ls.err != nil {
		return nil, ls.err
	}
	return e, nil
}

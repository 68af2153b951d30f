package nn

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"dualgrad/internal/dual"
)

var (
	ErrActivationExists   = errors.New("activation already registered")
	ErrUnknownActivation  = errors.New("activation not found")
	ErrActivationRequired = errors.New("activation function is required")
)

// ActivationFunc maps one dual number to another. It must carry the incoming
// derivative through the chain rule.
type ActivationFunc func(x dual.Number) dual.Number

var activationRegistry = struct {
	mu sync.RWMutex
	m  map[string]ActivationFunc
}{
	m: make(map[string]ActivationFunc),
}

func init() {
	initializeBuiltInActivations()
}

func initializeBuiltInActivations() {
	MustRegisterActivation("identity", func(x dual.Number) dual.Number { return x })
	MustRegisterActivation("relu", dual.ReLU)
	MustRegisterActivation("tanh", dual.Tanh)
	MustRegisterActivation("sigmoid", dual.Sigmoid)
	MustRegisterActivation("exp", dual.Exp)
	MustRegisterActivation("softplus", dual.Chain(
		func(x float64) float64 { return math.Log1p(math.Exp(x)) },
		func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
	))
}

func RegisterActivation(name string, fn ActivationFunc) error {
	if name == "" {
		return errors.New("activation name is required")
	}
	if fn == nil {
		return ErrActivationRequired
	}

	activationRegistry.mu.Lock()
	defer activationRegistry.mu.Unlock()

	if _, exists := activationRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrActivationExists, name)
	}
	activationRegistry.m[name] = fn
	return nil
}

func MustRegisterActivation(name string, fn ActivationFunc) {
	if err := RegisterActivation(name, fn); err != nil {
		panic(err)
	}
}

func GetActivation(name string) (ActivationFunc, error) {
	activationRegistry.mu.RLock()
	fn, ok := activationRegistry.m[name]
	activationRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActivation, name)
	}
	return fn, nil
}

func ListActivations() []string {
	activationRegistry.mu.RLock()
	defer activationRegistry.mu.RUnlock()

	names := make([]string, 0, len(activationRegistry.m))
	for name := range activationRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetActivationRegistryForTests() {
	activationRegistry.mu.Lock()
	activationRegistry.m = make(map[string]ActivationFunc)
	activationRegistry.mu.Unlock()
	initializeBuiltInActivations()
}

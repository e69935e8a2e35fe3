package barcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
)

const (
	// Length is the number of digits in every barcode.
	Length = 12
	// DefaultMaxAttempts bounds how many candidates Allocate draws.
	DefaultMaxAttempts = 100
)

var codeSpace = big.NewInt(1_000_000_000_000)

// ErrExhausted is the cause carried by allocation failures after the retry bound.
var ErrExhausted = errors.New("barcode allocation exhausted")

// Checker reports whether a barcode is already assigned to an inventory item.
type Checker interface {
	BarcodeExists(ctx context.Context, code string) (bool, error)
}

// Generator draws one candidate barcode.
type Generator func() (string, error)

type collisionRecorder interface {
	BarcodeCollision()
}

// Allocator hands out barcodes not currently used by the catalog.
type Allocator struct {
	checker     Checker
	generate    Generator
	maxAttempts int
	metrics     collisionRecorder
}

// Option customizes an Allocator.
type Option func(*Allocator)

// WithGenerator replaces the random digit source.
func WithGenerator(g Generator) Option {
	return func(a *Allocator) {
		if g != nil {
			a.generate = g
		}
	}
}

// WithMaxAttempts overrides the retry bound; non-positive values are ignored.
func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithMetrics records collisions on m.
func WithMetrics(m collisionRecorder) Option {
	return func(a *Allocator) { a.metrics = m }
}

func NewAllocator(checker Checker, opts ...Option) (*Allocator, error) {
	if checker == nil {
		return nil, fmt.Errorf("barcode checker required")
	}
	a := &Allocator{
		checker:     checker,
		generate:    Random,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// MaxAttempts returns the configured retry bound.
func (a *Allocator) MaxAttempts() int {
	return a.maxAttempts
}

// Allocate returns a barcode that no inventory item currently carries.
// The check is advisory: callers persist the code under a unique index and
// call Allocate again if the insert loses a race.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := a.generate()
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate barcode")
		}
		taken, err := a.checker.BarcodeExists(ctx, code)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check barcode uniqueness")
		}
		if !taken {
			return code, nil
		}
		if a.metrics != nil {
			a.metrics.BarcodeCollision()
		}
	}
	return "", Exhausted(a.maxAttempts)
}

// Exhausted builds the error returned once attempts candidates were rejected.
func Exhausted(attempts int) error {
	return pkgerrors.Wrap(
		pkgerrors.CodeAllocationExhausted,
		ErrExhausted,
		fmt.Sprintf("could not generate a unique barcode after %d attempts", attempts),
	)
}

// Random draws a uniformly distributed 12-digit code; leading zeros are kept.
func Random() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", Length, n), nil
}

// Valid reports whether code has the barcode shape: exactly 12 ASCII digits.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

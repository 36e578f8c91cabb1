package core

import (
	"context"
	"fmt"
	"slices"

	apperrors "github.com/Skryldev/image-source/errors"
)

type lineageKey struct{}

// Lineage returns the chain of addresses whose fetches are nested in ctx,
// outermost first.
func Lineage(ctx context.Context) []Address {
	l, _ := ctx.Value(lineageKey{}).([]Address)
	return l
}

// EnterNested records that a fetch for parent is about to fetch child. It
// fails when child already appears in the chain or when the chain would
// exceed maxDepth.
func EnterNested(ctx context.Context, parent, child Address, maxDepth int) (context.Context, error) {
	chain := Lineage(ctx)
	if len(chain) == 0 || chain[len(chain)-1] != parent {
		chain = append(slices.Clone(chain), parent)
	}
	if slices.Contains(chain, child) {
		return ctx, apperrors.New(apperrors.CategoryInput, "fetch.nested",
			fmt.Errorf("%w: %s is its own ancestor", apperrors.ErrCyclicSource, child))
	}
	if maxDepth > 0 && len(chain) >= maxDepth {
		return ctx, apperrors.New(apperrors.CategoryInput, "fetch.nested",
			fmt.Errorf("%w: nesting deeper than %d at %s", apperrors.ErrCyclicSource, maxDepth, child))
	}
	next := append(slices.Clone(chain), child)
	return context.WithValue(ctx, lineageKey{}, next), nil
}

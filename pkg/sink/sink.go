// Package sink persists assembled tables.
package sink

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/Sternrassler/stat-client/pkg/table"
)

// ErrInvalidName is returned for table names that are not plain identifiers.
var ErrInvalidName = errors.New("invalid table name")

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Sink stores a named table.
type Sink interface {
	Write(ctx context.Context, name string, t *table.Table) error
}

// Multi writes to every sink in order and stops at the first error.
type Multi []Sink

func (m Multi) Write(ctx context.Context, name string, t *table.Table) error {
	for _, s := range m {
		if err := s.Write(ctx, name, t); err != nil {
			return err
		}
	}
	return nil
}

func checkName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

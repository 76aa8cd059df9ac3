package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlglider/sqlglider/internal/catalog"
)

type fakeCatalog struct{ name string }

func (f *fakeCatalog) Name() string { return f.name }
func (f *fakeCatalog) FetchDDL(context.Context, []string) map[string]catalog.Result {
	return nil
}
func (f *fakeCatalog) Close() error { return nil }

func TestRegisterAndOpen(t *testing.T) {
	catalog.Register("fake", func(cfg catalog.Config) (catalog.Catalog, error) {
		return &fakeCatalog{name: "fake"}, nil
	})

	cat, err := catalog.Open("fake", catalog.Config{})
	require.NoError(t, err)
	assert.Equal(t, "fake", cat.Name())
}

func TestOpenUnknownProvider(t *testing.T) {
	_, err := catalog.Open("no-such-provider", catalog.Config{})
	assert.ErrorContains(t, err, "unknown catalog provider")
}

func TestListIncludesPostgres(t *testing.T) {
	assert.Contains(t, catalog.List(), "postgres")
}

func TestLookupErrorUnwraps(t *testing.T) {
	inner := assert.AnError
	err := &catalog.LookupError{Table: "t", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "t")
}

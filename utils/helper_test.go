package utils

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkSlice(t *testing.T) {
	ids := []string{"1", "2", "3", "4", "5"}

	chunks := ChunkSlice(ids, 2)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"1", "2"}, chunks[0])
	assert.Equal(t, []string{"5"}, chunks[2])

	assert.Nil(t, ChunkSlice([]string{}, 3))
	assert.Len(t, ChunkSlice(ids, 0), 1)
}

func TestUniqueSliceKeepsFirstOccurrenceOrder(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, UniqueSlice([]string{"b", "a", "b", "c", "a"}))
}

func TestProcessValidationErrors(t *testing.T) {
	type query struct {
		MaxInspections int `validate:"min=1,max=500"`
	}
	err := validator.New().Struct(query{MaxInspections: 900})
	require.Error(t, err)
	assert.Equal(t, map[string]string{"MaxInspections": "max"}, ProcessValidationErrors(err))

	assert.Equal(t, map[string]string{"request": "boom"}, ProcessValidationErrors(errors.New("boom")))
}

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal(" 12.50 ")
	require.NoError(t, err)
	assert.Equal(t, "12.5", d.String())

	_, err = ParseDecimal("")
	assert.Error(t, err)
}

func TestNilIfEmpty(t *testing.T) {
	assert.Nil(t, NilIfEmpty(""))
	require.NotNil(t, NilIfEmpty("S"))
	assert.Equal(t, "S", *NilIfEmpty("S"))
}

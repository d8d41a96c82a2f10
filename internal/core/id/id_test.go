package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TimeOrdered(t *testing.T) {
	a := New()
	b := New()

	assert.Equal(t, 7, int(a.Version()))
	assert.Less(t, a.String(), b.String())
}

func TestParseOptional(t *testing.T) {
	got, err := ParseOptional("")
	require.NoError(t, err)
	assert.Nil(t, got)

	v := New()
	got, err = ParseOptional(v.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, v, *got)

	_, err = ParseOptional("not-a-uuid")
	assert.Error(t, err)
}

func TestEqualPtr(t *testing.T) {
	v := New()

	assert.True(t, EqualPtr(nil, nil))
	assert.False(t, EqualPtr(nil, Ptr(v)))
	assert.True(t, EqualPtr(Ptr(v), Ptr(v)))
	assert.False(t, EqualPtr(Ptr(v), Ptr(New())))
}

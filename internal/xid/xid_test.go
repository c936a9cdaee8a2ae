package xid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	a := New("sale")
	b := New("sale")

	assert.True(t, strings.HasPrefix(a, "sale_"))
	assert.Len(t, a, len("sale_")+32)
	assert.NotEqual(t, a, b)
}

func TestNewWithoutPrefix(t *testing.T) {
	assert.Len(t, New(""), 32)
}

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInTransaction(t *testing.T) {
	assert.False(t, InTransaction(context.Background()))
	assert.False(t, InTransaction(context.WithValue(context.Background(), txKey, "not a tx")))
}

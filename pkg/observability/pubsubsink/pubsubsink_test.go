package pubsubsink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransactionSubjectIsNamespacedPerTransaction(t *testing.T) {
	assert.Equal(t, "activity.tx1", TransactionSubject("tx1"))
	assert.Equal(t, "activity.tx2", TransactionSubject("tx2"))
	assert.NotEqual(t, TransactionSubject("tx1"), TransactionSubject("tx2"))
}

func TestGlobalSubjectIsFixed(t *testing.T) {
	assert.Equal(t, "activity.all", GlobalSubject)
}

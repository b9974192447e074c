package policyregistry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien-gate/policyproxy/pkg/policy"
)

func TestActiveReturnsInstalledPolicy(t *testing.T) {
	p := policy.NewPassthroughPolicy()
	r := New(p)
	assert.Same(t, policy.Policy(p), r.Active())
}

func TestSetSwapsActivePolicy(t *testing.T) {
	first := policy.NewPassthroughPolicy()
	second := policy.NewBufferingPolicy("second")
	r := New(first)

	r.Set(second)

	assert.Equal(t, "second", r.Active().Name())
}

func TestConcurrentSwapsNeverRace(t *testing.T) {
	r := New(policy.NewPassthroughPolicy())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Set(policy.NewBufferingPolicy("p"))
			_ = r.Active()
		}(i)
	}
	wg.Wait()
	require.NotNil(t, r.Active())
}

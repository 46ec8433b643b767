package matchqueue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmitRunsEveryConcurrentJobForOneMarket(t *testing.T) {
	m := NewManager()
	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Submit("BTC-USDT", func() {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	assert.Len(t, order, 20)
}

func TestSubmitBlocksUntilJobCompletes(t *testing.T) {
	m := NewManager()
	result := 0
	m.Submit("BTC-USDT", func() { result = 42 })
	assert.Equal(t, 42, result)
}

func TestDifferentMarketsDoNotShareAQueue(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.Submit("BTC-USDT", func() {})
	}()
	go func() {
		defer wg.Done()
		m.Submit("ETH-USDT", func() {})
	}()
	wg.Wait()
	assert.Len(t, m.queues, 2)
	assert.Equal(t, 0, m.Depth("BTC-USDT"))
	assert.Equal(t, 0, m.Depth("ETH-USDT"))
}

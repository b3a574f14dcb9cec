package keylock_test

import (
	"sync"
	"testing"

	"github.com/anishgillella/Voice-Receptionist/pkg/utils/keylock"
	"github.com/m-mizutani/gt"
)

func TestKeyLockSerializesSameKey(t *testing.T) {
	kl := keylock.New()

	var wg sync.WaitGroup
	counter := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := kl.Lock("conv-1")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	gt.Value(t, counter).Equal(50)
	gt.Value(t, kl.Len()).Equal(0)
}

func TestKeyLockIndependentKeys(t *testing.T) {
	kl := keylock.New()

	unlockA := kl.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := kl.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	gt.Value(t, kl.Len()).Equal(1)
	unlockA()
	gt.Value(t, kl.Len()).Equal(0)
}

package idle

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/idlewatch/pkg/types"
)

func TestNewClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewClock(start)

	if got := clock.Read(); got != types.TimestampOf(start) {
		t.Errorf("Read() = %v, want %v", got, types.TimestampOf(start))
	}
}

func TestClock_UpdateOverwrites(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewClock(start)

	later := types.TimestampOf(start.Add(time.Minute))
	clock.Update(later)
	if got := clock.Read(); got != later {
		t.Errorf("Read() after Update = %v, want %v", got, later)
	}

	// Update is unconditional, an older value still wins.
	earlier := types.TimestampOf(start.Add(-time.Minute))
	clock.Update(earlier)
	if got := clock.Read(); got != earlier {
		t.Errorf("Read() after older Update = %v, want %v", got, earlier)
	}
}

func TestClock_Idle(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewClock(start)

	if got := clock.Idle(start.Add(90 * time.Second)); got != 90*time.Second {
		t.Errorf("Idle() = %v, want 90s", got)
	}
}

// Every value a reader observes must be one some writer actually stored.
func TestClock_NoTornReads(t *testing.T) {
	const (
		writers   = 8
		readers   = 8
		perWriter = 500
	)

	// Values with distinct high and low halves so a torn read would produce
	// a combination no writer ever stored.
	valueFor := func(w, i int) types.Timestamp {
		hi := int64(w+1) << 32
		lo := int64(w+1)*1_000_000 + int64(i)
		return types.Timestamp(hi | lo)
	}

	written := make(map[types.Timestamp]bool, writers*perWriter+1)
	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			written[valueFor(w, i)] = true
		}
	}

	start := time.UnixMilli(0)
	clock := NewClock(start)
	written[types.TimestampOf(start)] = true

	var wg sync.WaitGroup
	stop := make(chan struct{})
	bad := make(chan types.Timestamp, readers)

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if v := clock.Read(); !written[v] {
					select {
					case bad <- v:
					default:
					}
					return
				}
				runtime.Gosched()
			}
		}()
	}

	var writersWG sync.WaitGroup
	for w := 0; w < writers; w++ {
		writersWG.Add(1)
		go func(w int) {
			defer writersWG.Done()
			for i := 0; i < perWriter; i++ {
				clock.Update(valueFor(w, i))
			}
		}(w)
	}

	writersWG.Wait()
	close(stop)
	wg.Wait()
	close(bad)

	for v := range bad {
		t.Errorf("reader observed value %d that was never written", v)
	}
}

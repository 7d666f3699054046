package snowflake

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	timestampBits = 42
	processBits   = 5
	workerBits    = 5
	stepBits      = 12

	processMax = -1 ^ (-1 << processBits)
	workerMax  = -1 ^ (-1 << workerBits)
	stepMask   = -1 ^ (-1 << stepBits)

	timeShift    = processBits + workerBits + stepBits
	processShift = workerBits + stepBits
	workerShift  = stepBits

	epoch int64 = 1704067200000 // 2024-01-01 00:00:00 UTC
)

// ErrClockRegression is returned when the wall clock reads earlier than
// the timestamp of the last issued ID. Generating through a regression
// could reissue an ID, so the node refuses instead.
var ErrClockRegression = errors.New("snowflake: clock moved backwards")

// Node issues time-sortable 64-bit IDs. Uniqueness across nodes holds
// only if every running node has a distinct (process, worker) pair;
// both must be assigned by deployment configuration.
type Node struct {
	mu      sync.Mutex
	time    int64
	process int64
	worker  int64
	step    int64

	now func() int64
}

func NewNode(process, worker int64) (*Node, error) {
	if process < 0 || process > processMax {
		return nil, fmt.Errorf("snowflake: process id must be between 0 and %d", processMax)
	}
	if worker < 0 || worker > workerMax {
		return nil, fmt.Errorf("snowflake: worker id must be between 0 and %d", workerMax)
	}
	return &Node{
		process: process,
		worker:  worker,
		now:     func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Next returns the next ID. IDs from one node are strictly increasing;
// natural integer order equals chronological order.
func (n *Node) Next() (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()

	if now < n.time {
		return 0, fmt.Errorf("%w: last=%d now=%d", ErrClockRegression, n.time, now)
	}

	if n.time == now {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			// Sequence exhausted for this millisecond, wait out the clock.
			for now <= n.time {
				now = n.now()
			}
		}
	} else {
		n.step = 0
	}

	n.time = now

	return ((now - epoch) << timeShift) |
		(n.process << processShift) |
		(n.worker << workerShift) |
		n.step, nil
}

// Timestamp extracts the creation time encoded in an ID.
func Timestamp(id int64) time.Time {
	return time.UnixMilli((id >> timeShift) + epoch)
}

package transfer

import "sync"

// Subscriber receives the full transfer list after every change.
type Subscriber func([]Transfer)

// notifier fans snapshots out to subscribers. Every subscriber has its own
// goroutine and unbounded FIFO queue: publish never blocks, delivery order
// matches publish order, and a callback may call back into the Registry.
type notifier struct {
	mu          sync.Mutex
	nextID      int
	subscribers map[int]*subscription
}

func newNotifier() *notifier {
	return &notifier{subscribers: map[int]*subscription{}}
}

func (n *notifier) add(fn Subscriber, initial []Transfer) *subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	sub := &subscription{
		id:     n.nextID,
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	n.subscribers[sub.id] = sub
	sub.enqueue(initial)
	go sub.run()

	return sub
}

func (n *notifier) remove(sub *subscription) {
	n.mu.Lock()
	delete(n.subscribers, sub.id)
	n.mu.Unlock()

	sub.stop()
}

// close unsubscribes everyone once the snapshots already queued for them are delivered.
func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for id, sub := range n.subscribers {
		sub.finish()
		delete(n.subscribers, id)
	}
}

// publish must be called with the registry lock held so that snapshots enter the queues in mutation order.
func (n *notifier) publish(snapshot []Transfer) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.subscribers {
		sub.enqueue(append([]Transfer(nil), snapshot...))
	}
}

type subscription struct {
	id int
	fn Subscriber

	mu       sync.Mutex
	queue    [][]Transfer
	draining bool
	signal   chan struct{}

	done     chan struct{}
	stopOnce sync.Once
	exited   chan struct{}
}

func (s *subscription) enqueue(snapshot []Transfer) {
	s.mu.Lock()
	s.queue = append(s.queue, snapshot)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// finish makes run return once the queue is empty.
func (s *subscription) finish() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// next pops the oldest snapshot. drained reports an empty queue after finish.
func (s *subscription) next() (snapshot []Transfer, ok, drained bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil, false, s.draining
	}
	snapshot = s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return snapshot, true, false
}

func (s *subscription) run() {
	defer close(s.exited)

	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		for {
			snapshot, ok, drained := s.next()
			if drained {
				s.stop()
				return
			}
			if !ok {
				break
			}

			select {
			case <-s.done:
				return
			default:
			}

			s.fn(snapshot)
		}
	}
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

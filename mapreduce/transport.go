package mapreduce

import (
	"context"
	"fmt"
	"sync"
)

type transport[T any] interface {
	// Recv receives the data sent to specified id. Blocks until someone
	// calls Send with corresponding id, or until all senders called Close
	// or ctx is done. The bool is false in the latter two cases.
	Recv(ctx context.Context, id int) (T, bool)

	// Send sends the data to specified id. Blocks until there is room in
	// the receiver's buffer or ctx is done.
	Send(ctx context.Context, id int, data T) error

	// Close is called by sender, whenever it sent all it's data. It must be
	// called exactly once per sender. Sender must not use transport after
	// calling Close.
	Close()
}

type chanTransport[T any] struct {
	sendersWg *sync.WaitGroup
	peers     []chan T
}

func newTransport[T any](senders, receivers, buffer int) transport[T] {
	peers := make([]chan T, receivers)
	for i := range receivers {
		peers[i] = make(chan T, buffer)
	}

	sendersWg := &sync.WaitGroup{}
	sendersWg.Add(senders)

	go func() {
		sendersWg.Wait()
		for _, ch := range peers {
			close(ch)
		}
	}()

	return &chanTransport[T]{
		sendersWg: sendersWg,
		peers:     peers,
	}
}

func (t *chanTransport[T]) Recv(ctx context.Context, id int) (data T, open bool) {
	ch := t.peer(id)

	select {
	case <-ctx.Done():
		return data, false
	case data, open = <-ch:
		return data, open
	}
}

func (t *chanTransport[T]) Send(ctx context.Context, id int, data T) error {
	ch := t.peer(id)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ch <- data:
		return nil
	}
}

func (t *chanTransport[T]) Close() {
	t.sendersWg.Done()
}

func (t *chanTransport[T]) peer(id int) chan T {
	if id < 0 || id >= len(t.peers) {
		panic(fmt.Sprintf("transport: no peer for id %d", id))
	}

	return t.peers[id]
}

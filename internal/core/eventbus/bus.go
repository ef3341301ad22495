package eventbus

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/dep2p/go-lanconnect/internal/util/logger"
)

var log = logger.Logger("eventbus")

// ErrClosed 事件总线已关闭
var ErrClosed = errors.New("eventbus closed")

// Listener 事件监听者
type Listener func(event any)

type entry struct {
	key string
	fn  Listener
}

// Bus 串行事件总线
type Bus struct {
	name string

	mu        sync.Mutex
	listeners []entry
	queue     []func()
	closed    bool

	wake chan struct{}
	done chan struct{}
}

// New 创建事件总线并启动工作 goroutine
func New(name string) *Bus {
	b := &Bus{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go b.run()
	return b
}

// Subscribe 注册监听者；同键已存在时替换
func (b *Bus) Subscribe(key string, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.listeners {
		if b.listeners[i].key == key {
			b.listeners[i].fn = fn
			return
		}
	}
	b.listeners = append(b.listeners, entry{key: key, fn: fn})
}

// Unsubscribe 移除监听者
func (b *Bus) Unsubscribe(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.listeners {
		if b.listeners[i].key == key {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Len 返回监听者数量
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Emit 将事件排入队列，由工作 goroutine 分发给当时注册的所有监听者
func (b *Bus) Emit(event any) error {
	return b.Post(func() {
		for _, l := range b.snapshot() {
			b.invoke(l, event)
		}
	})
}

// Post 在事件线程上执行 fn
func (b *Bus) Post(fn func()) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.queue = append(b.queue, fn)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return nil
}

// Flush 等待此前排入的事件全部分发完成
func (b *Bus) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	if err := b.Post(func() { close(flushed) }); err != nil {
		return err
	}
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 停止接收新事件，分发完已排队事件后返回
//
// Close 会等待工作 goroutine 退出，不能在监听者或 Post 的任务中调用，
// 否则永久阻塞；事件线程上请使用 Shutdown。
func (b *Bus) Close() error {
	b.Shutdown()
	<-b.done
	return nil
}

// Shutdown 停止接收新事件但不等待分发结束，可在事件线程上调用
//
// 已排队的事件仍会分发；Done 在工作 goroutine 退出后关闭。
func (b *Bus) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Done 工作 goroutine 退出后关闭
func (b *Bus) Done() <-chan struct{} { return b.done }

func (b *Bus) snapshot() []entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]entry(nil), b.listeners...)
}

func (b *Bus) run() {
	defer close(b.done)

	for {
		b.mu.Lock()
		batch := b.queue
		b.queue = nil
		closed := b.closed
		b.mu.Unlock()

		for _, fn := range batch {
			b.safeRun(fn)
		}

		if len(batch) == 0 {
			if closed {
				return
			}
			<-b.wake
		}
	}
}

func (b *Bus) invoke(l entry, event any) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("listener panicked", "bus", b.name, "key", l.key, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	l.fn(event)
}

func (b *Bus) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("event task panicked", "bus", b.name, "panic", r)
		}
	}()
	fn()
}

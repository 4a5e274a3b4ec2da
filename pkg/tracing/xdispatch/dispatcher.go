package xdispatch

import (
	"context"
	"sync"

	"github.com/omeyang/xwalk/pkg/observability/xlog"
	"github.com/omeyang/xwalk/pkg/observability/xmetrics"
	"github.com/omeyang/xwalk/pkg/tracing/xspan"
)

const component = "xdispatch"

// Dispatcher segment 分发器
//
// 设计决策: 引擎侧只调用非阻塞的 Dispatch，队列满即丢弃；
// 丢失一条 trace 的代价远小于拖慢宿主请求。
type Dispatcher struct {
	listener Listener
	opts     options
	logger   xlog.Logger

	queue    chan *xspan.TraceSegment
	wg       sync.WaitGroup
	stopOnce sync.Once

	// closeMu 读锁保护发送，写锁保护关闭，closed 之后不再向 queue 发送
	closeMu sync.RWMutex
	closed  bool

	startMu sync.Mutex
	started bool
}

// New 创建 Dispatcher，需要调用 Start 启动 worker
func New(listener Listener, opts ...Option) (*Dispatcher, error) {
	if listener == nil {
		return nil, ErrNilListener
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = xlog.Default()
	}
	return &Dispatcher{
		listener: listener,
		opts:     o,
		logger:   logger.With(xlog.Component(component)),
		queue:    make(chan *xspan.TraceSegment, o.queueSize),
	}, nil
}

// Start 启动 worker，幂等
func (d *Dispatcher) Start() {
	d.startMu.Lock()
	defer d.startMu.Unlock()
	if d.started {
		return
	}
	d.started = true

	for range d.opts.workers {
		d.wg.Add(1)
		go d.worker()
	}
}

// worker 读取队列直到关闭，保证 Stop 时剩余 segment 被处理完
func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for seg := range d.queue {
		d.deliver(seg)
	}
}

func (d *Dispatcher) deliver(seg *xspan.TraceSegment) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(context.Background(), "listener panic recovered",
				xlog.Panic(r), xlog.Operation("AfterFinished"))
			d.opts.recorder.Record(context.Background(), xmetrics.EventFault, component)
		}
	}()
	d.listener.AfterFinished(seg)
}

// Dispatch 非阻塞提交 segment
//
// 队列满返回 ErrQueueFull，已停止返回 ErrStopped，两种情况都会记录 segment_dropped。
func (d *Dispatcher) Dispatch(seg *xspan.TraceSegment) error {
	if seg == nil {
		return nil
	}
	err := d.enqueue(seg)
	if err != nil {
		d.opts.recorder.Record(context.Background(), xmetrics.EventSegmentDropped, component)
	}
	return err
}

// enqueue 持读锁发送，与 Stop 的关闭互斥
func (d *Dispatcher) enqueue(seg *xspan.TraceSegment) error {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		return ErrStopped
	}
	select {
	case d.queue <- seg:
		return nil
	default:
		d.logger.Warn(context.Background(), "queue full, segment dropped",
			xlog.Operation("Dispatch"))
		return ErrQueueFull
	}
}

// AfterFinished 使 Dispatcher 本身满足 Listener，可直接作为引擎的完成回调
func (d *Dispatcher) AfterFinished(seg *xspan.TraceSegment) {
	_ = d.Dispatch(seg) //nolint:errcheck // 丢弃已计数
}

// Stop 停止接收并等待队列排空，幂等
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.closeMu.Lock()
		d.closed = true
		close(d.queue)
		d.closeMu.Unlock()
		d.startMu.Lock()
		started := d.started
		d.started = true // 防止 Stop 之后再 Start
		d.startMu.Unlock()
		if !started {
			// 从未启动时在当前 goroutine 排空
			for seg := range d.queue {
				d.deliver(seg)
			}
		}
		d.wg.Wait()
	})
}

// Workers 返回 worker 数量
func (d *Dispatcher) Workers() int { return d.opts.workers }

// QueueSize 返回队列容量
func (d *Dispatcher) QueueSize() int { return d.opts.queueSize }

// Pending 返回队列中待处理的 segment 数
func (d *Dispatcher) Pending() int { return len(d.queue) }

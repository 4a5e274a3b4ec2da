package xspan

// =============================================================================
// EntrySpan
// =============================================================================

// EntrySpan 入站边界 Span
type EntrySpan struct {
	base
}

var _ TracingSpan = (*EntrySpan)(nil)

// NewEntrySpan 创建 EntrySpan
func NewEntrySpan(id, parentID int32, operationName string, owner Owner, opts ...Option) *EntrySpan {
	s := &EntrySpan{}
	s.init(s, KindEntry, id, parentID, operationName, owner, opts)
	return s
}

// Reenter 嵌套的入站调用扩展当前 EntrySpan：最内层的操作名生效，
// 已记录的组件、技术层、标签与日志被清空，由最内层重新填写。
func (s *EntrySpan) Reenter(operationName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reenter()
	s.operationName = operationName
	s.component = Component{}
	s.layer = LayerUnknown
	s.tags = nil
	s.logs = nil
}

// =============================================================================
// LocalSpan
// =============================================================================

// LocalSpan 进程内工作 Span
type LocalSpan struct {
	base
}

var _ TracingSpan = (*LocalSpan)(nil)

// NewLocalSpan 创建 LocalSpan
func NewLocalSpan(id, parentID int32, operationName string, owner Owner, opts ...Option) *LocalSpan {
	s := &LocalSpan{}
	s.init(s, KindLocal, id, parentID, operationName, owner, opts)
	return s
}

// SetPeer 空操作，本地 Span 的对端总是本进程
func (s *LocalSpan) SetPeer(string) {}

// Reenter LocalSpan 不支持重入，总是由上下文压入新 Span，这里只维护深度
func (s *LocalSpan) Reenter(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reenter()
}

// =============================================================================
// ExitSpan
// =============================================================================

// ExitSpan 出站边界 Span
type ExitSpan struct {
	base
}

var _ TracingSpan = (*ExitSpan)(nil)

// NewExitSpan 创建 ExitSpan
func NewExitSpan(id, parentID int32, operationName, peer string, owner Owner, opts ...Option) *ExitSpan {
	s := &ExitSpan{}
	s.init(s, KindExit, id, parentID, operationName, owner, opts)
	s.peer = peer
	return s
}

// Reenter 嵌套的出站调用扩展当前 ExitSpan：最外层的操作名与 peer 保持不变
func (s *ExitSpan) Reenter(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reenter()
}

package xagent

// CarrierItem 传播头链表中的一项
//
// 每一项可独立往返：传输层可以携带、丢弃或忽略任意子集，不影响其余项。
type CarrierItem interface {
	// Key 头名称
	Key() string
	// Value 待注入的头值，按需序列化
	Value() string
	// SetValue 接收提取到的头值
	SetValue(text string)
	// Next 下一项，末尾为 nil
	Next() CarrierItem
}

// Items 返回传播头链表的第一项，顺序为 sw8、sw8-correlation、sw8-x
func (c *ContextCarrier) Items() CarrierItem {
	ext := &extensionItem{carrier: c}
	corr := &correlationItem{carrier: c, next: ext}
	return &sw8Item{carrier: c, next: corr}
}

// ForEach 依次访问每一项
func (c *ContextCarrier) ForEach(fn func(item CarrierItem)) {
	for it := c.Items(); it != nil; it = it.Next() {
		fn(it)
	}
}

type sw8Item struct {
	carrier *ContextCarrier
	next    CarrierItem
}

func (i *sw8Item) Key() string { return HeaderSW8 }
func (i *sw8Item) Value() string { return i.carrier.Serialize(V3) }
func (i *sw8Item) SetValue(text string) { i.carrier.Deserialize(text, V3) }
func (i *sw8Item) Next() CarrierItem { return i.next }

type correlationItem struct {
	carrier *ContextCarrier
	next    CarrierItem
}

func (i *correlationItem) Key() string { return HeaderCorrelation }
func (i *correlationItem) Value() string { return i.carrier.Correlation().Serialize() }
func (i *correlationItem) SetValue(text string) {
	if text != "" {
		i.carrier.Correlation().Deserialize(text)
	}
}
func (i *correlationItem) Next() CarrierItem { return i.next }

type extensionItem struct {
	carrier *ContextCarrier
}

func (i *extensionItem) Key() string { return HeaderExtension }
func (i *extensionItem) Value() string { return i.carrier.Extension().Serialize() }
func (i *extensionItem) SetValue(text string) {
	if text != "" {
		i.carrier.Extension().Deserialize(text)
	}
}
func (i *extensionItem) Next() CarrierItem { return nil }

package xboot

import (
	"errors"
	"fmt"
	"sync"
)

// Registration 一次登记
type Registration struct {
	Capability string
	Service    Service
	Mode       Mode
	// Priority 越小越先启动、越晚关闭
	Priority int
}

// RegisterOption 登记选项
type RegisterOption func(*Registration)

// WithPriority 设置启动优先级，默认 0
func WithPriority(p int) RegisterOption {
	return func(r *Registration) {
		r.Priority = p
	}
}

// Registry 登记表，Resolve 之前可并发登记
type Registry struct {
	mu   sync.Mutex
	regs []Registration
	errs []error
}

// NewRegistry 创建空登记表
func NewRegistry() *Registry {
	return &Registry{}
}

// Register 登记 capability 的一个实现
//
// 参数错误在 Resolve 时统一返回。
func (r *Registry) Register(capability string, svc Service, mode Mode, opts ...RegisterOption) {
	reg := Registration{Capability: capability, Service: svc, Mode: mode}
	for _, opt := range opts {
		opt(&reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case capability == "":
		r.errs = append(r.errs, ErrEmptyCapability)
	case svc == nil:
		r.errs = append(r.errs, fmt.Errorf("%w: capability %s", ErrNilService, capability))
	default:
		r.regs = append(r.regs, reg)
	}
}

// Resolve 按登记顺序解析默认/覆盖关系，得到每个 capability 唯一的实现
func (r *Registry) Resolve(opts ...Option) (*Services, error) {
	r.mu.Lock()
	regs := append([]Registration(nil), r.regs...)
	errs := append([]error(nil), r.errs...)
	r.mu.Unlock()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	chosen := make(map[string]int, len(regs)) // capability -> 在 resolved 中的下标
	var resolved []Registration
	for _, reg := range regs {
		i, exists := chosen[reg.Capability]
		switch reg.Mode {
		case ModeDefault:
			if !exists {
				chosen[reg.Capability] = len(resolved)
				resolved = append(resolved, reg)
			}
		case ModeOverride:
			switch {
			case !exists:
				chosen[reg.Capability] = len(resolved)
				resolved = append(resolved, reg)
			case resolved[i].Mode == ModeDefault:
				resolved[i] = reg
			default:
				return nil, fmt.Errorf("%w: more than one override for %s", ErrConflict, reg.Capability)
			}
		default:
			if exists {
				return nil, fmt.Errorf("%w: duplicate service for %s", ErrConflict, reg.Capability)
			}
			chosen[reg.Capability] = len(resolved)
			resolved = append(resolved, reg)
		}
	}
	return newServices(resolved, opts), nil
}

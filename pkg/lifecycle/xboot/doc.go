// Package xboot 管理追踪引擎各子系统的注册、解析与生命周期。
//
// # 概述
//
// 子系统（追踪 Manager、配置热重载、上报客户端等）以 capability 为键登记到 Registry，
// 启动时 Resolve 一次得到 Services。解析规则：
//   - ModeStandard: 每个 capability 只能有一个标准实现，重复登记报 ErrConflict
//   - ModeDefault: 默认实现，capability 已被占用时忽略
//   - ModeOverride: 替换同 capability 的默认实现；已有非默认实现时报 ErrConflict
//
// # 生命周期
//
// Boot 依次执行三个阶段：按 Priority 升序 Prepare、按 Priority 升序 Boot、
// 按登记顺序 OnComplete。Shutdown 按 Priority 降序执行。
// 单个服务的失败被记录日志并合并到返回的错误中，不中断其余服务。
//
// Run 在 Boot 之后并发运行实现了 Runner 的服务，收到终止信号或任一 Runner
// 返回错误时取消 ctx，等待全部 Runner 退出后执行 Shutdown。
//
// # 快速开始
//
//	reg := xboot.NewRegistry()
//	reg.Register(xboot.CapabilityTracing, xboot.TracingService(m), xboot.ModeStandard)
//	reg.Register(xboot.CapabilityConfigWatch, xboot.ConfigWatchService(loader, m, logger), xboot.ModeStandard,
//	    xboot.WithPriority(10))
//
//	svcs, err := reg.Resolve(xboot.WithLogger(logger))
//	if err != nil { ... }
//	err = svcs.Run(ctx)
//
// Group 是 Run 的底层并发原语（基于 [errgroup]），也可以单独使用。
//
// [errgroup]: https://pkg.go.dev/golang.org/x/sync/errgroup
package xboot

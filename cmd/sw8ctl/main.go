// sw8ctl 是 sw8 跨进程传播头的命令行编解码工具。
//
// 用法:
//
//	sw8ctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-j, --json     以 JSON 输出
//
// 命令:
//
//	decode <sw8>                    解码 sw8 头并报告是否可用于构建上游引用
//	encode                          由各字段构造 sw8 头
//	correlation decode <value>      解码 sw8-correlation 头
//	correlation encode <k=v>...     构造 sw8-correlation 头
//	extension decode <value>        解码 sw8-x 头
//
// 退出码:
//
//	0: 命令执行成功
//	1: 命令执行失败，或 decode 得到的 carrier 无效
//	2: 参数错误（缺少参数、字段不完整、未知 flag 等）
//
// 示例:
//
//	sw8ctl decode 1-dHJhY2UtMQ==-c2VnLTE=-1-b3JkZXI=-b3JkZXItMQ==-L29yZGVycw==-a2Fma2E6OTA5Mg==
//	sw8ctl encode --trace-id t1 --segment-id s1 --span-id 1 --service order \
//	    --instance order-1 --endpoint /orders --address kafka:9092
//	sw8ctl -j correlation decode dGVuYW50:YWNtZQ==
//	sw8ctl correlation encode tenant=acme region=cn
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// createApp 创建 CLI 应用。
func createApp(stdout, stderr io.Writer) *cli.Command {
	app := &cli.Command{
		Name:      "sw8ctl",
		Usage:     "sw8 传播头编解码工具",
		Version:   fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "以 JSON 输出",
			},
		},
		Commands: createCommands(),
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(stderr, err)
			}
		},
		Description: `sw8ctl 用于排查跨进程链路断裂：解码抓包或日志里的 sw8 头，
检查各字段是否齐全，或手工构造头部注入到请求中复现问题。

sw8 头格式（v3）:
  1-{trace}-{segment}-{spanId}-{service}-{instance}-{endpoint}-{peer}
  除 spanId 和首位采样标志外，其余字段均为 base64 编码。`,
	}
	markUsageErrors(app)
	return app
}

// markUsageErrors 让框架产生的参数错误（未知 flag、flag 值非法）
// 统一转换为 usageError，映射到退出码 2。
func markUsageErrors(cmd *cli.Command) {
	cmd.OnUsageError = func(_ context.Context, _ *cli.Command, err error, _ bool) error {
		return &usageError{err: err}
	}
	for _, sub := range cmd.Commands {
		markUsageErrors(sub)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp(stdout, stderr)

	if err := app.Run(ctx, args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		fmt.Fprintf(stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}

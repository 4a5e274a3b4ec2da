package xid

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
)

// osHostname 测试注入点
var osHostname = os.Hostname

const (
	// EnvMachineID 直接指定机器 id 的环境变量（0-65535）
	EnvMachineID = "XWALK_MACHINE_ID"

	// EnvPodName K8s Pod 名称环境变量（Downward API 注入）
	EnvPodName = "POD_NAME"

	// EnvHostname 主机名环境变量
	EnvHostname = "HOSTNAME"
)

// DefaultMachineID 按以下优先级获取机器 id：
//
//  1. XWALK_MACHINE_ID 环境变量
//  2. POD_NAME 的哈希
//  3. HOSTNAME 的哈希
//  4. os.Hostname() 的哈希
//
// 哈希方式存在碰撞可能，但 id 中还包含进程 uuid，碰撞只降低可读性不影响唯一性。
func DefaultMachineID() (uint16, error) {
	if s := os.Getenv(EnvMachineID); s != "" {
		id, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("xid: invalid %s value %q: %w", EnvMachineID, s, err)
		}
		return uint16(id), nil
	}
	for _, env := range []string{EnvPodName, EnvHostname} {
		if v := os.Getenv(env); v != "" {
			return hashToMachineID(v), nil
		}
	}
	hostname, err := osHostname()
	if err != nil {
		return 0, fmt.Errorf("xid: all machine id strategies exhausted: %w", err)
	}
	if hostname == "" {
		return 0, errors.New("xid: all machine id strategies exhausted: empty hostname")
	}
	return hashToMachineID(hostname), nil
}

// hashToMachineID FNV-1a 32 位哈希异或折叠为 16 位
func hashToMachineID(s string) uint16 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	b := h.Sum(nil)
	hi := uint16(b[0])<<8 | uint16(b[1])
	lo := uint16(b[2])<<8 | uint16(b[3])
	return hi ^ lo
}

// Package idgen 基于 snowflake 生成全局唯一 ID
package idgen

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Init 指定节点号初始化生成器，多实例部署时每个实例必须不同
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("failed to create snowflake node %d: %w", nodeID, err)
	}
	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

// GenID 生成一个新的 ID，未初始化时使用节点 1
func GenID() int64 {
	mu.Lock()
	if node == nil {
		// 节点号 1 在 snowflake 允许的范围内，不会出错
		node, _ = snowflake.NewNode(1)
	}
	n := node
	mu.Unlock()
	return n.Generate().Int64()
}

// GenPrefixed 生成带业务前缀的字符串 ID，例如 MOV-1893746
func GenPrefixed(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, GenID())
}

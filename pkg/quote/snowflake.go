// 文件: pkg/quote/snowflake.go
// 雪花算法 ID 生成器
// 使用开源库: github.com/bwmarrin/snowflake

package quote

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node     *snowflake.Node
	initOnce sync.Once
	initErr  error
)

// InitSnowflake 初始化雪花算法
// nodeID: 节点ID (0-1023)，多实例部署时每个实例不同
func InitSnowflake(nodeID int64) error {
	initOnce.Do(func() {
		node, initErr = snowflake.NewNode(nodeID)
	})
	return initErr
}

// GenerateQuoteID 生成报价ID
func GenerateQuoteID() int64 {
	if node == nil {
		// 未初始化则使用默认节点0
		if err := InitSnowflake(0); err != nil || node == nil {
			panic("quote: snowflake node not initialized")
		}
	}
	return node.Generate().Int64()
}

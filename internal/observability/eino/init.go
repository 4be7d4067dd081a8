// Package eino 把 eino 组件回调接到 Prometheus 与 OpenTelemetry
package eino

import (
	"sync"

	einocallbacks "github.com/cloudwego/eino/callbacks"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
)

var initOnce sync.Once

// Init 注册全局回调：回答生成（ChatModel）与查询/导入向量化（Embedding）。
// fusion-api 与 ellctl ingest 启动时各调用一次
func Init() {
	initOnce.Do(func() {
		einocallbacks.AppendGlobalHandlers(globalHandler())
	})
}

func globalHandler() einocallbacks.Handler {
	return cbtemplate.NewHandlerHelper().
		ChatModel(newChatModelCallbackHandler()).
		Embedding(newEmbeddingCallbackHandler()).
		Handler()
}

//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"ell-intel-api/internal/application/retrieval"
	"ell-intel-api/internal/config"
	"ell-intel-api/internal/infrastructure/messaging"
	"ell-intel-api/internal/interfaces/http/router"
)

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RedisSet,
		VectorAppSet,
		RetrievalSet,
		MemorySet,
		FusionSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeWriter 初始化记忆回写消费者
func InitializeWriter(ctx context.Context, cfg *config.Config) (*messaging.Consumer, func(), error) {
	wire.Build(WriterSet)
	return nil, nil, nil
}

// InitializeIngest 初始化离线导入用的索引器
func InitializeIngest(ctx context.Context, cfg *config.Config) (*retrieval.Indexer, func(), error) {
	wire.Build(
		VectorSet,
		ProvideIndexer,
	)
	return nil, nil, nil
}

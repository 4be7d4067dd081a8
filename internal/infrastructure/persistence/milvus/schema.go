// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionCustomerChunks 客户文档切片集合
	CollectionCustomerChunks = "customer_chunks"

	// DefaultVectorDimension 默认向量维度
	DefaultVectorDimension = 1536

	fieldID       = "id"
	fieldVector   = "vector"
	fieldSource   = "source"
	fieldEntityID = "entity_id"
	fieldText     = "text_content"
)

// CustomerChunksSchema 客户文档切片 Collection Schema。
// 元信息以 @@meta 头部写入 text_content，source 与 entity_id 单独成列用于删除过滤。
func CustomerChunksSchema(dim int) *entity.Schema {
	if dim <= 0 {
		dim = DefaultVectorDimension
	}
	return &entity.Schema{
		CollectionName: CollectionCustomerChunks,
		Description:    "Customer document chunks for semantic search",
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			{
				Name:     fieldSource,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     fieldEntityID,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     fieldText,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
		},
	}
}

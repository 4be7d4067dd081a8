package dto

// AddMemoryRequest 写入一条记忆
type AddMemoryRequest struct {
	Content string `json:"content" binding:"required,max=20000"`
	UserID  string `json:"user_id,omitempty" binding:"max=128"`
}

// SearchMemoryRequest 检索记忆
type SearchMemoryRequest struct {
	Query  string `json:"query" binding:"required,max=5000"`
	UserID string `json:"user_id,omitempty" binding:"max=128"`
	Limit  int    `json:"limit" binding:"omitempty,min=1,max=50"`
}

// MemoryResult MemMachine 工具的原始返回
type MemoryResult struct {
	Success bool `json:"success"`
	Result  any  `json:"result"`
}

// MemoryHealthResponse MemMachine 连通性
type MemoryHealthResponse struct {
	Status      string `json:"status"` // connected / disconnected / disabled
	MCPEndpoint string `json:"mcp_endpoint,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Package domain 定义了本地云控制台的核心领域模型。
// 本文件定义了资源模板目录。
package domain

import "strings"

// ResourceTemplate 表示一组预定义的资源组合。
// 创建请求可以只指定模板名称，由模板展开为具体的资源类型集合。
type ResourceTemplate struct {
	// ID 是模板的唯一标识（如 "serverless"）
	ID string `json:"id"`
	// Name 是模板的显示名称
	Name string `json:"name"`
	// Description 是模板描述
	Description string `json:"description"`
	// Resources 是模板包含的资源类型，未包含的类型值为 false
	Resources map[ResourceKind]bool `json:"resources"`
}

// Selection 返回模板对应的资源选择。
func (t ResourceTemplate) Selection() ResourceSelection {
	sel := make(ResourceSelection, len(t.Resources))
	for k, v := range t.Resources {
		if v {
			sel[k] = true
		}
	}
	return sel
}

func templateResources(kinds ...ResourceKind) map[ResourceKind]bool {
	m := map[ResourceKind]bool{
		KindObjectStore: false,
		KindKVTable:     false,
		KindFunction:    false,
		KindGateway:     false,
	}
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// Templates 返回内置模板目录，顺序固定。
func Templates() []ResourceTemplate {
	return []ResourceTemplate{
		{
			ID:          "basic",
			Name:        "Basic Setup",
			Description: "S3 bucket and DynamoDB table for basic storage needs",
			Resources:   templateResources(KindObjectStore, KindKVTable),
		},
		{
			ID:          "serverless",
			Name:        "Serverless Application",
			Description: "Complete serverless stack with Lambda and API Gateway",
			Resources:   templateResources(KindObjectStore, KindKVTable, KindFunction, KindGateway),
		},
		{
			ID:          "storage",
			Name:        "Storage Only",
			Description: "S3 bucket for file storage",
			Resources:   templateResources(KindObjectStore),
		},
		{
			ID:          "database",
			Name:        "Database Only",
			Description: "DynamoDB table for data storage",
			Resources:   templateResources(KindKVTable),
		},
		{
			ID:          "api",
			Name:        "API Only",
			Description: "API Gateway with Lambda function",
			Resources:   templateResources(KindFunction, KindGateway),
		},
	}
}

// FindTemplate 按 ID 查找模板（忽略大小写）
func FindTemplate(id string) (ResourceTemplate, bool) {
	for _, t := range Templates() {
		if strings.EqualFold(t.ID, strings.TrimSpace(id)) {
			return t, true
		}
	}
	return ResourceTemplate{}, false
}

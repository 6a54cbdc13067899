package api

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/oriys/localcloud/internal/domain"
)

// ListResources 列出项目的全部资源。
// HTTP端点: GET /api/v1/resources?projectName=
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.inventory.ListResources(r.Context(), h.projectName(r)))
}

// CreateResources 按资源类型或模板批量创建资源。
// HTTP端点: POST /api/v1/resources
//
// 请求体格式:
//
//	{
//	  "projectName": "demo",
//	  "resources": {"s3": true, "dynamodb": true},
//	  "template": "basic",
//	  "dynamodbConfig": {"tableName": "orders", "partitionKey": "id"}
//	}
//
// 部分失败仍返回 200，结果中的 errors 列出失败的资源类型。
func (h *Handler) CreateResources(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateResourcesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	result, err := h.orchestrator.CreateResources(r.Context(), &req)
	if err != nil {
		h.logWarn(r, "CreateResources", "Rejected resource creation request", logrus.Fields{"error": err.Error()})
		writeDomainError(w, r, err)
		return
	}

	h.logInfo(r, "CreateResources", "Resource creation finished", logrus.Fields{
		"project": req.ProjectName,
		"created": len(result.CreatedResources),
		"failed":  len(result.Errors),
	})
	writeJSON(w, http.StatusOK, result)
}

// CreateSingleResource 按给定配置创建单个资源。
// HTTP端点: POST /api/v1/resources/single
//
// 与批量创建不同，后端调用失败返回 500。
func (h *Handler) CreateSingleResource(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSingleResourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	desc, err := h.orchestrator.CreateSingle(r.Context(), &req)
	if err != nil {
		if !domain.IsConfigError(err) {
			h.logError(r, "CreateSingleResource", "Failed to create resource", err, logrus.Fields{
				"project": req.ProjectName,
				"kind":    req.ResourceType,
			})
		}
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: fmt.Sprintf("%s resource created successfully", req.ResourceType),
		Data:    desc,
	})
}

// DestroyResources 销毁项目中指定的资源，未指定时销毁全部。
// HTTP端点: POST /api/v1/resources/destroy
func (h *Handler) DestroyResources(w http.ResponseWriter, r *http.Request) {
	var req domain.DestroyResourcesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	outcome, err := h.orchestrator.DestroyResources(r.Context(), &req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// DestroySingleResource 按类型和名称销毁单个资源。
// HTTP端点: POST /api/v1/resources/destroy-single
func (h *Handler) DestroySingleResource(w http.ResponseWriter, r *http.Request) {
	var req domain.DestroySingleResourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	outcome, err := h.orchestrator.DestroySingle(r.Context(), &req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/resource"
)

type createResourceRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

type patchResourceRequest struct {
	Status resource.Status `json:"status"`
}

func (s *Server) handleCreateResource(c *gin.Context) {
	var req createResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.BadRequestf("invalid request body: %v", err))
		return
	}
	res, err := s.container.Service.CreateResource(c.Request.Context(), req.Name, req.Description, req.Tags, userFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) handleListResources(c *gin.Context) {
	list, count, err := s.container.Service.ListResources(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resources": list, "count": count})
}

func (s *Server) handleGetResource(c *gin.Context) {
	res, err := s.container.Service.GetResource(c.Request.Context(), domain.EntityID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handlePatchResource supports the archived status transition only.
func (s *Server) handlePatchResource(c *gin.Context) {
	var req patchResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.BadRequestf("invalid request body: %v", err))
		return
	}
	if req.Status != resource.StatusArchived {
		respondError(c, domain.BadRequestf("unsupported status %q", req.Status))
		return
	}
	res, err := s.container.Service.ArchiveResource(c.Request.Context(), domain.EntityID(c.Param("id")), userFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleDeleteResource(c *gin.Context) {
	id := domain.EntityID(c.Param("id"))
	if err := s.container.Service.DeleteResource(c.Request.Context(), id, userFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
}

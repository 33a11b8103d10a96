package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	queuedomain "github.com/smallbiznis/recurring/internal/queue/domain"
	"github.com/smallbiznis/recurring/pkg/db/pagination"
)

func (s *Server) ListJobs(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	state := queuedomain.JobState(strings.TrimSpace(c.DefaultQuery("state", string(queuedomain.JobStateFailure))))

	jobs, pageInfo, err := s.queueSvc.List(c.Request.Context(), state, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": jobs, "page_info": pageInfo})
}

func (s *Server) CountJobs(c *gin.Context) {
	counts, err := s.queueSvc.CountByState(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": counts})
}

// RunCron runs one scheduler pass in the request.
func (s *Server) RunCron(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	if err := s.scheduler.RunOnce(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

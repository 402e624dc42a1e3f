package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	userdomain "github.com/smallbiznis/duesledger/internal/user/domain"
)

type onboardResidentRequest struct {
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Building  string `json:"building"`
	Floor     string `json:"floor"`
	Apartment string `json:"apartment"`
}

func (s *Server) OnboardResident(c *gin.Context) {
	var req onboardResidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.userSvc.Onboard(c.Request.Context(), userdomain.OnboardRequest{
		Username:  req.Username,
		FullName:  req.FullName,
		Building:  req.Building,
		Floor:     req.Floor,
		Apartment: req.Apartment,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

type assignBuildingsRequest struct {
	Buildings []string `json:"buildings"`
}

func (s *Server) AssignCollectorBuildings(c *gin.Context) {
	collectorID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req assignBuildingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	buildings, err := s.userSvc.AssignBuildings(c.Request.Context(), collectorID, req.Buildings)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"collector_id": collectorID.String(), "buildings": buildings}})
}

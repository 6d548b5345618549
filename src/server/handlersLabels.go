package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type LabelBody struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (s *Server) GetLabels(c *gin.Context) {
	labels, err := s.images.AllLabels(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "payload": labels})
}

func (s *Server) CreateLabel(c *gin.Context) {
	var body LabelBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondBindError(c, err)
		return
	}
	label, err := s.images.CreateLabel(c.Request.Context(), body.Name, body.Color)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "payload": label})
}

func (s *Server) DeleteLabel(c *gin.Context) {
	if err := s.images.DeleteLabel(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) AddImageLabel(c *gin.Context) {
	var body LabelBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondBindError(c, err)
		return
	}
	image, err := s.images.AddLabel(c.Request.Context(), c.Param("id"), userID(c), body.Name, body.Color)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondImage(c, image)
}

func (s *Server) RemoveImageLabel(c *gin.Context) {
	image, err := s.images.RemoveLabel(c.Request.Context(), c.Param("id"), userID(c), c.Param("labelId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondImage(c, image)
}

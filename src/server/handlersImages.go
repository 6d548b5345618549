package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	app "photoalbum/src/app"

	"github.com/gin-gonic/gin"
)

type (
	SignUploadBody struct {
		Filename    string `json:"filename"`
		ContentType string `json:"contentType"`
	}

	SaveImageBody struct {
		S3Key       string `json:"s3Key"`
		Filename    string `json:"filename"`
		FileSize    *int64 `json:"fileSize"`
		ContentType string `json:"contentType"`
	}

	// ImageResponse is an image record with a URL its bytes can be read from.
	ImageResponse struct {
		*app.Image
		URL string `json:"url"`
	}
)

const (
	imageFormField = "image"
	keyFormField   = "key"
	userIDQuery    = "userId"
	labelsQuery    = "labels"
	statusQuery    = "status"
)

// UploadImage takes a multipart upload, resizes it and stores it.
func (s *Server) UploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.Server.MaxUploadBytes)
	header, err := c.FormFile(imageFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(c, app.BadRequestf("image exceeds %d bytes", s.config.Server.MaxUploadBytes))
			return
		}
		s.respondError(c, app.BadRequestf("can not find image in request"))
		return
	}
	file, err := header.Open()
	if err != nil {
		s.respondError(c, app.Internal("failed to read file", err))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		s.respondError(c, app.Internal("failed to read file", err))
		return
	}
	key, err := s.images.IngestBytes(c.Request.Context(), raw, header.Filename, c.PostForm(keyFormField))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "payload": gin.H{"key": key}})
}

// SignUpload hands out an upload target. The caller is taken from the bearer
// token when present, otherwise from the userId query parameter.
func (s *Server) SignUpload(c *gin.Context) {
	var body SignUploadBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondBindError(c, err)
		return
	}
	owner := userID(c)
	if owner == "" {
		owner = c.Query(userIDQuery)
	}
	target, err := s.images.IssueUploadTarget(c.Request.Context(), body.Filename, body.ContentType, owner)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "payload": target})
}

func (s *Server) SaveImage(c *gin.Context) {
	var body SaveImageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondBindError(c, err)
		return
	}
	image, err := s.images.RecordUpload(c.Request.Context(), app.NewUpload{
		OwnerID:     userID(c),
		StorageKey:  body.S3Key,
		Filename:    body.Filename,
		FileSize:    body.FileSize,
		ContentType: body.ContentType,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "payload": image})
}

func (s *Server) GetImageList(c *gin.Context) {
	filter := app.ListFilter{Status: app.ImageStatus(c.Query(statusQuery))}
	if raw := c.Query(labelsQuery); raw != "" {
		filter.Labels = strings.Split(raw, ",")
	}
	images, err := s.images.ListForOwner(c.Request.Context(), userID(c), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	result := make([]ImageResponse, 0, len(images))
	for i := range images {
		resp, err := s.withURL(c.Request.Context(), &images[i])
		if err != nil {
			s.respondError(c, err)
			return
		}
		result = append(result, resp)
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "payload": result})
}

func (s *Server) GetImage(c *gin.Context) {
	image, err := s.images.GetOwned(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondImage(c, image)
}

func (s *Server) DeleteImage(c *gin.Context) {
	if err := s.images.SoftDelete(c.Request.Context(), c.Param("id"), userID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ArchiveImage(c *gin.Context) {
	image, err := s.images.Archive(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondImage(c, image)
}

func (s *Server) RestoreImage(c *gin.Context) {
	image, err := s.images.Restore(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondImage(c, image)
}

func (s *Server) respondImage(c *gin.Context, image *app.Image) {
	resp, err := s.withURL(c.Request.Context(), image)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "payload": resp})
}

func (s *Server) withURL(ctx context.Context, image *app.Image) (ImageResponse, error) {
	u, err := s.images.ResolveURL(ctx, image.StorageKey)
	if err != nil {
		return ImageResponse{}, err
	}
	return ImageResponse{Image: image, URL: u}, nil
}

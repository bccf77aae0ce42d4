// media.go: stored image serving.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/heatwatch/heatwatch-go/internal/imagestore"
)

// initMediaRoutes registers image serving routes.
func (c *Controller) initMediaRoutes() {
	c.Group.GET("/media/images/:filename", c.ServeImage)
}

// ServeImage streams a stored image by its generated filename.
func (c *Controller) ServeImage(ctx echo.Context) error {
	filename := ctx.Param("filename")
	path, err := c.Images.Path(filename)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid image filename", http.StatusBadRequest)
	}
	if !c.Images.Exists(filename) {
		return c.HandleError(ctx, imagestore.ErrNotFound, "Image not found", http.StatusNotFound)
	}
	ctx.Response().Header().Set(echo.HeaderContentType, imagestore.ContentType(filename))
	return ctx.File(path)
}

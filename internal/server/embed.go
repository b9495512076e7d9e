package server

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/warpdeck/webui"
)

// RegisterStaticFiles mounts the embedded dashboard page on the Gin engine.
// API routes registered before this take precedence; unknown /api/ paths
// answer JSON 404, everything else falls back to index.html.
func RegisterStaticFiles(r *gin.Engine) {
	webRoot, err := fs.Sub(webui.FS, "web")
	if err != nil {
		panic("embed: web sub-fs failed: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(webRoot))

	r.NoRoute(func(c *gin.Context) {
		p := c.Request.URL.Path
		if strings.HasPrefix(p, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusMethodNotAllowed)
			return
		}

		name := strings.TrimPrefix(path.Clean(p), "/")
		if name != "" && name != "index.html" {
			if st, err := fs.Stat(webRoot, name); err == nil && !st.IsDir() {
				fileServer.ServeHTTP(c.Writer, c.Request)
				return
			}
		}

		data, err := fs.ReadFile(webRoot, "index.html")
		if err != nil {
			c.String(http.StatusNotFound, "dashboard page not embedded")
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", data)
	})
}

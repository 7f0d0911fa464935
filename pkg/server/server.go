// Package server exposes the prediction pipeline as a small web application.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"

	"github.com/safevision/safevision"
	"github.com/safevision/safevision/internal/utils"
	"github.com/safevision/safevision/pkg/analyzer"
	"github.com/safevision/safevision/pkg/types"
)

// DefaultMaxUpload limits the size of an uploaded image.
const DefaultMaxUpload = 32 << 20

// Options are the directories the server reads from and writes to.
type Options struct {
	OutputDir  string
	UploadsDir string
	SamplesDir string
	// Class names shown next to detections. May be nil.
	Names     []string
	MaxUpload int64
}

// Server serves the index page, the prediction API and the produced files.
type Server struct {
	pipeline *safevision.Pipeline
	inspect  *analyzer.ImageAnalyzer
	opts     Options
	log      logs.Log
	router   *gin.Engine
}

// DetectionView is a detection as returned by the API.
type DetectionView struct {
	types.Detection
	Name string `json:"name"`
}

// PredictResponse is the body of a successful POST /api/predict.
type PredictResponse struct {
	Input      string          `json:"input"`
	Detections []DetectionView `json:"detections"`
	ImageURL   string          `json:"image_url"`
	LabelURL   string          `json:"label_url"`
	PreviewURL string          `json:"preview_url"`
}

// New creates a Server. Output and upload directories are created on demand.
func New(pipeline *safevision.Pipeline, opts Options, log logs.Log) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("%w: no pipeline", types.ErrConfiguration)
	}
	if opts.OutputDir == "" || opts.UploadsDir == "" {
		return nil, fmt.Errorf("%w: output and uploads directories are required", types.ErrConfiguration)
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = DefaultMaxUpload
	}
	for _, dir := range []string{opts.OutputDir, opts.UploadsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: creating %s: %v", types.ErrConfiguration, dir, err)
		}
	}

	s := &Server{
		pipeline: pipeline,
		inspect:  analyzer.New(),
		opts:     opts,
		log:      log,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = s.opts.MaxUpload

	r.GET("/", s.index)
	r.GET("/api/samples", s.listSamples)
	r.POST("/api/predict", s.predict)
	r.GET("/predictions/:name", s.download)

	// Inline previews for the page
	preview := r.Group("/preview")
	preview.Use(static.Serve("/preview", static.LocalFile(s.opts.OutputDir, false)))
	preview.GET("/*file", notFound)
	if s.opts.SamplesDir != "" {
		samples := r.Group("/samples")
		samples.Use(static.Serve("/samples", static.LocalFile(s.opts.SamplesDir, false)))
		samples.GET("/*file", notFound)
	}
	return r
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.infof("Listening on %s", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

// listSamples returns the sorted .png names in the samples directory.
func (s *Server) listSamples(c *gin.Context) {
	if s.opts.SamplesDir == "" || !utils.DirExists(s.opts.SamplesDir) {
		c.JSON(http.StatusNotFound, gin.H{"warning": fmt.Sprintf("Sample images directory %s does not exist", s.opts.SamplesDir)})
		return
	}
	samples, err := s.samples()
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := gin.H{"samples": samples}
	if len(samples) == 0 {
		resp["warning"] = "No sample images found"
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) samples() ([]string, error) {
	entries, err := os.ReadDir(s.opts.SamplesDir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading samples: %v", types.ErrIO, err)
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".png" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Server) predict(c *gin.Context) {
	input, err := s.resolveInput(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	paths, set, err := s.pipeline.PredictAndSave(c.Request.Context(), input, s.opts.OutputDir)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.infof("Predicted %d objects for %s", len(set), filepath.Base(input))

	views := make([]DetectionView, len(set))
	for i, d := range set {
		views[i] = DetectionView{Detection: d, Name: s.className(d)}
	}
	imageName := filepath.Base(paths.Image)
	labelName := filepath.Base(paths.Label)
	c.JSON(http.StatusOK, PredictResponse{
		Input:      filepath.Base(input),
		Detections: views,
		ImageURL:   "/predictions/" + url.PathEscape(imageName),
		LabelURL:   "/predictions/" + url.PathEscape(labelName),
		PreviewURL: "/preview/" + url.PathEscape(imageName),
	})
}

// resolveInput stores an uploaded image or locates the chosen sample and
// returns its path.
func (s *Server) resolveInput(c *gin.Context) (string, error) {
	if file, err := c.FormFile("image"); err == nil {
		name := utils.SanitizeFilename(file.Filename)
		if name == "" || !utils.IsUploadImage(name) {
			return "", fmt.Errorf("%w: upload must be a png, jpg or jpeg file", types.ErrInvalidInput)
		}
		if file.Size > s.opts.MaxUpload {
			return "", fmt.Errorf("%w: upload is %s, limit is %s", types.ErrInvalidInput,
				utils.FormatFileSize(file.Size), utils.FormatFileSize(s.opts.MaxUpload))
		}
		f, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("%w: reading upload: %v", types.ErrIO, err)
		}
		_, err = s.inspect.InspectReader(f)
		f.Close()
		if err != nil {
			return "", err
		}
		dst := filepath.Join(s.opts.UploadsDir, name)
		if err := c.SaveUploadedFile(file, dst); err != nil {
			return "", fmt.Errorf("%w: saving upload: %v", types.ErrIO, err)
		}
		s.infof("Saved upload %s (%s)", name, utils.FormatFileSize(file.Size))
		return dst, nil
	}

	sample := c.PostForm("sample")
	if sample == "" {
		return "", fmt.Errorf("%w: send an image file or choose a sample", types.ErrInvalidInput)
	}
	if s.opts.SamplesDir == "" || utils.SanitizeFilename(sample) != sample || filepath.Ext(sample) != ".png" {
		return "", fmt.Errorf("%w: unknown sample %q", types.ErrInvalidInput, sample)
	}
	path := filepath.Join(s.opts.SamplesDir, sample)
	if !utils.FileExists(path) {
		return "", fmt.Errorf("%w: unknown sample %q", types.ErrInvalidInput, sample)
	}
	return path, nil
}

// download sends a produced image or label file as an attachment.
func (s *Server) download(c *gin.Context) {
	name := c.Param("name")
	// Sanitizing strips separators and trims dots, so "." and ".." never survive it
	if name == "" || utils.SanitizeFilename(name) != name {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}
	path := filepath.Join(s.opts.OutputDir, name)
	if !utils.FileExists(path) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such prediction: " + name})
		return
	}
	c.FileAttachment(path, name)
}

func (s *Server) className(d types.Detection) string {
	if d.ClassID >= 0 && d.ClassID < len(s.opts.Names) {
		return s.opts.Names[d.ClassID]
	}
	if d.Label != "" {
		return d.Label
	}
	return fmt.Sprint(d.ClassID)
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= 500 && s.log != nil {
		s.log.Errorf("%v %v: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) infof(format string, args ...any) {
	if s.log != nil {
		s.log.Infof(format, args...)
	}
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

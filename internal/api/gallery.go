package api

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pr-poehali-dev/speech-parts-drawing/internal/catalog"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/export"
)

func (s *Server) listDrawings(w http.ResponseWriter, r *http.Request) {
	drawings, err := s.store.ListDrawings(false)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drawings": drawings})
}

// getDrawing serves /drawings/{id} as JSON and /drawings/{id}.png as the image
func (s *Server) getDrawing(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	id, asPNG := strings.CutSuffix(file, ".png")

	d, err := s.store.GetDrawing(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if asPNG {
		writePNG(w, d.PNG)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) drawingThumb(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDrawing(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	size := 200
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 2048 {
			size = n
		}
	}
	data, err := export.Thumbnail(d.PNG, size)
	if err != nil {
		s.fail(w, err)
		return
	}
	writePNG(w, data)
}

func (s *Server) deleteDrawing(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteDrawing(r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) galleryPDF(w http.ResponseWriter, r *http.Request) {
	drawings, err := s.store.ListDrawings(true)
	if err != nil {
		s.fail(w, err)
		return
	}
	avatars, err := s.store.ListAvatars("")
	if err != nil {
		s.fail(w, err)
		return
	}

	var buf bytes.Buffer
	err = export.GalleryPDF(&buf, export.Gallery{
		Title:       "Части речи",
		Parts:       catalog.All(),
		PartImages:  s.partImages(r.Context()),
		Drawings:    drawings,
		Avatars:     avatars,
		GeneratedAt: time.Now(),
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="gallery.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// partImages downloads generated part avatars. Failures leave the part
// without a picture.
func (s *Server) partImages(ctx context.Context) map[string][]byte {
	urls, err := s.store.PartAvatars()
	if err != nil {
		s.log.Warn("list part avatars", zap.Error(err))
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	images := make(map[string][]byte, len(urls))
	for id, pa := range urls {
		img, err := s.fetch.FetchImage(ctx, pa.URL)
		if err != nil {
			s.log.Warn("fetch part avatar", zap.String("part", id), zap.Error(err))
			continue
		}
		images[id] = img.Data
	}
	return images
}

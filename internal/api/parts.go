package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pr-poehali-dev/speech-parts-drawing/internal/avatar"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/canvas"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/catalog"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/domain"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/generator"
)

// withAvatars fills AvatarURL from generated images
func (s *Server) withAvatars(parts ...domain.SpeechPart) ([]domain.SpeechPart, error) {
	urls, err := s.store.PartAvatars()
	if err != nil {
		return nil, err
	}
	for i := range parts {
		if pa, ok := urls[parts[i].ID]; ok {
			parts[i].AvatarURL = pa.URL
		}
	}
	return parts, nil
}

func (s *Server) listParts(w http.ResponseWriter, r *http.Request) {
	parts, err := s.withAvatars(catalog.All()...)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"parts": parts})
}

func (s *Server) getPart(w http.ResponseWriter, r *http.Request) {
	part, err := catalog.Lookup(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	parts, err := s.withAvatars(part)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, parts[0])
}

func (s *Server) palette(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"colors":        catalog.Palette(),
		"emoji":         catalog.EmojiOptions(),
		"min_width":     canvas.MinLineWidth,
		"max_width":     canvas.MaxLineWidth,
		"default_color": canvas.DefaultColor,
		"default_width": canvas.DefaultLineWidth,
	})
}

// GenerateRequest is the request body for avatar generation
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) generateAvatar(w http.ResponseWriter, r *http.Request) {
	if s.gen == nil {
		s.fail(w, generator.ErrNotConfigured)
		return
	}
	part, err := catalog.Lookup(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}

	var req GenerateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prompt, err := generator.ComposePrompt(part, req.Prompt)
	if err != nil {
		s.fail(w, err)
		return
	}

	log := s.log.With(zap.String("part", part.ID))
	err = s.track.Start(s.baseCtx, part.ID, func(ctx context.Context) (string, error) {
		res, err := s.gen.Generate(ctx, generator.Request{PartID: part.ID, Prompt: prompt})
		if err != nil {
			log.Warn("avatar generation failed", zap.Error(err))
			return "", err
		}
		if _, err := s.store.SetPartAvatar(part.ID, res.ImageURL); err != nil {
			return "", err
		}
		log.Info("avatar stored", zap.String("url", res.ImageURL))
		return res.ImageURL, nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, s.track.Status(part.ID))
}

func (s *Server) avatarStatus(w http.ResponseWriter, r *http.Request) {
	part, err := catalog.Lookup(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.track.Status(part.ID))
}

func (s *Server) cancelAvatar(w http.ResponseWriter, r *http.Request) {
	part, err := catalog.Lookup(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if !s.track.Cancel(part.ID) {
		writeError(w, http.StatusNotFound, "no pending generation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) randomAvatar(w http.ResponseWriter, r *http.Request) {
	partID := r.URL.Query().Get("part")
	if partID == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'part' is required")
		return
	}
	part, err := catalog.Lookup(partID)
	if err != nil {
		s.fail(w, err)
		return
	}
	draft, err := s.random.Random(part.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) createAvatar(w http.ResponseWriter, r *http.Request) {
	var draft avatar.Draft
	if err := decodeBody(w, r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := avatar.Compose(draft, time.Now().UTC())
	if err != nil {
		// an unknown part in the body is a bad request, not a missing resource
		if statusFor(err) == http.StatusNotFound {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.fail(w, err)
		return
	}
	if err := s.store.SaveAvatar(a); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) listAvatars(w http.ResponseWriter, r *http.Request) {
	partID := r.URL.Query().Get("part")
	if partID != "" {
		part, err := catalog.Lookup(partID)
		if err != nil {
			s.fail(w, err)
			return
		}
		partID = part.ID
	}
	avatars, err := s.store.ListAvatars(partID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"avatars": avatars})
}

func (s *Server) deleteAvatar(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAvatar(r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) avatarBadge(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAvatar(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	size := 128
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1024 {
			size = n
		}
	}
	data, err := avatar.Badge(a, size)
	if err != nil {
		s.fail(w, err)
		return
	}
	writePNG(w, data)
}

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-shorts/internal/catalog"
	"github.com/heimdex/heimdex-shorts/internal/export"
)

const maxScriptBody = 1 << 20

func createRenderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req catalog.RenderRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScriptBody)).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		render, job, err := cfg.Service.CreateRender(r.Context(), req)
		if err != nil {
			writeServiceError(w, err, "render")
			return
		}
		WriteJSON(w, http.StatusAccepted, CreateRenderResponse{RenderID: render.ID, JobID: job.ID})
	}
}

func generateScriptHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Generator == nil {
			WriteError(w, http.StatusServiceUnavailable, "script generation is not configured", "UNAVAILABLE")
			return
		}

		var req GenerateScriptRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScriptBody)).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if strings.TrimSpace(req.SourceText) == "" {
			WriteError(w, http.StatusBadRequest, "source_text is required", "BAD_REQUEST")
			return
		}

		lines, err := cfg.Generator.Dialogue(r.Context(), req.SourceText)
		if err != nil {
			cfg.Logger.Warn("script generation failed", "error", err)
			WriteError(w, http.StatusBadGateway, err.Error(), "GENERATION_FAILED")
			return
		}

		resp := GenerateScriptResponse{Lines: lines}
		if req.Render {
			render, job, err := cfg.Service.CreateRender(r.Context(), catalog.RenderRequest{Title: req.Title, Lines: lines})
			if err != nil {
				writeServiceError(w, err, "render")
				return
			}
			resp.RenderID, resp.JobID = render.ID, job.ID
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func listRendersHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 500 {
				WriteError(w, http.StatusBadRequest, "limit must be between 1 and 500", "BAD_REQUEST")
				return
			}
			limit = n
		}

		renders, err := cfg.Service.ListRenders(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list renders", "INTERNAL_ERROR")
			return
		}
		resp := RendersResponse{Renders: make([]RenderResponse, len(renders))}
		for i, rd := range renders {
			resp.Renders[i] = RenderToResponse(rd)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getRenderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render, err := cfg.Service.GetRender(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err, "render")
			return
		}
		WriteJSON(w, http.StatusOK, RenderToResponse(render))
	}
}

func timelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tl, err := cfg.Service.GetTimeline(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err, "render")
			return
		}
		WriteJSON(w, http.StatusOK, tl)
	}
}

func captionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := strings.ToLower(chi.URLParam(r, "format"))
		var contentType string
		switch format {
		case export.FormatSRT:
			contentType = "application/x-subrip; charset=utf-8"
		case export.FormatVTT:
			contentType = "text/vtt; charset=utf-8"
		default:
			WriteError(w, http.StatusNotFound, "captions are available as .srt or .vtt", "NOT_FOUND")
			return
		}

		tl, err := cfg.Service.GetTimeline(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err, "render")
			return
		}
		doc, _, err := export.Generate(tl, format, "", "", 0)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(doc))
	}
}

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		req.Format = strings.ToLower(req.Format)
		if req.Format == "" {
			req.Format = export.FormatEDL
		}
		if export.Extension(req.Format) == "" {
			WriteError(w, http.StatusBadRequest, "format must be one of edl, srt, vtt", "BAD_REQUEST")
			return
		}
		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		render, err := cfg.Service.GetRender(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err, "render")
			return
		}
		if render.Timeline == nil {
			writeServiceError(w, catalog.ErrNotReady, "render")
			return
		}

		resp, err := export.WriteFile(render.Timeline, req, render.Title, render.VideoPath)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

type mediaKind int

const (
	mediaVideo mediaKind = iota
	mediaAudio
)

func mediaHandler(cfg ServerConfig, kind mediaKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Playback == nil {
			WriteError(w, http.StatusServiceUnavailable, "playback not available", "UNAVAILABLE")
			return
		}

		render, err := cfg.Service.GetRender(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err, "render")
			return
		}

		path := render.VideoPath
		if kind == mediaAudio {
			path = render.AudioPath
		}
		if path == "" {
			writeServiceError(w, catalog.ErrNotReady, "render")
			return
		}

		if err := cfg.Playback.ServeFile(w, r, path); err != nil {
			// ServeFile only fails before any header is written.
			cfg.Logger.Error("playback error", "error", err, "render_id", render.ID)
			WriteError(w, http.StatusInternalServerError, "playback failed", "INTERNAL_ERROR")
		}
	}
}

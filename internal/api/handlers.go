package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"bilisub/internal/acquire"
	"bilisub/internal/logging"
	"bilisub/internal/queue"
	"bilisub/internal/services"
	"bilisub/internal/subtitle"
	"bilisub/internal/workflow"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	summary := s.manager.Status(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": summary.Running,
	})
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	p, _ := PrincipalFrom(r.Context())
	useASR := s.cfg.Recognition.Enabled
	if req.UseASR != nil {
		useASR = *req.UseASR
	}
	var cred *acquire.Credential
	if req.Credentials != nil && !req.Credentials.Empty() {
		cred = req.Credentials
	}
	item, err := s.manager.Submit(r.Context(), workflow.Submission{
		ClientID: p.ClientID,
		QuotaKey: quotaKey(p, r),
		Input:    req.URL,
		Formats:  req.OutputFormats,
		Options: queue.Options{
			Languages:      req.Languages,
			UseRecognition: useASR,
			Model:          strings.TrimSpace(req.ASRModel),
			LanguageHint:   strings.TrimSpace(req.ASRLang),
			SaveAudio:      req.SaveAudio,
		},
		CallbackURL: strings.TrimSpace(req.CallbackURL),
		Credential:  cred,
	})
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	logging.WithContext(services.WithItemID(r.Context(), item.ID), s.logger).Info("task submitted",
		logging.String("input", item.Input),
		logging.Bool("credential", cred != nil),
		logging.String(logging.FieldEventType, "task_submitted"),
	)
	writeJSON(w, http.StatusAccepted, FromItem(item))
}

// quotaKey charges anonymous callers of an open service by remote address.
// RealIP has already replaced RemoteAddr when a proxy header is present.
func quotaKey(p Principal, r *http.Request) string {
	if p.ClientID != "" {
		return p.ClientID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	query := r.URL.Query()
	filter := queue.Filter{ClientID: p.ClientID}
	if p.Admin {
		filter.ClientID = strings.TrimSpace(query.Get("client"))
	}
	for _, raw := range query["status"] {
		for _, part := range strings.Split(raw, ",") {
			status, ok := queue.ParseStatus(strings.TrimSpace(part))
			if !ok {
				writeError(w, r, s.logger, services.Classify(services.KindInvalidInput, "list tasks", fmt.Errorf("unknown status %q", part)))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, r, s.logger, services.Classify(services.KindInvalidInput, "list tasks", fmt.Errorf("invalid limit %q", raw)))
			return
		}
		filter.Limit = limit
	}
	items, err := s.manager.Store().List(r.Context(), filter)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, FromItems(items))
}

// ownedTask loads the task named in the URL and enforces ownership.
func (s *Server) ownedTask(ctx context.Context, id string) (*queue.Item, error) {
	item, err := s.manager.Store().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return nil, errUnauthorized
	}
	if !p.Admin && item.ClientID != p.ClientID {
		return nil, errForbidden
	}
	return item, nil
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	item, err := s.ownedTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, FromItem(item))
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	item, err := s.ownedTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if item.Status != queue.StatusCompleted || item.Result == nil {
		writeError(w, r, s.logger, fmt.Errorf("%w: %s is %s", errNotReady, item.ID, item.Status))
		return
	}
	res := TaskResult{
		TaskID:      item.ID,
		VideoInfo:   videoInfo(item.Video),
		Files:       make([]FileLink, 0, len(item.Result.Files)),
		Stats:       item.Result.Stats,
		Languages:   item.Result.Languages,
		NoSubtitles: item.Result.NoSubtitles,
		UsedASR:     item.Result.UsedRecognition,
		Note:        item.Result.Note,
	}
	for _, name := range item.Result.Files {
		link, err := s.fileLink(item, name)
		if err != nil {
			writeError(w, r, s.logger, err)
			return
		}
		res.Files = append(res.Files, link)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) fileLink(item *queue.Item, name string) (FileLink, error) {
	link := FileLink{
		Name:        name,
		ContentType: subtitle.ContentTypeForFile(name),
		URL:         "/api/download/" + url.PathEscape(item.ID) + "/" + url.PathEscape(name),
	}
	if s.tokens == nil {
		return link, nil
	}
	token, expires, err := s.tokens.Issue(item.ID, name, item.ClientID)
	if err != nil {
		return FileLink{}, err
	}
	link.URL += "?token=" + url.QueryEscape(token)
	link.ExpiresAt = expires.UTC().Format(dateTimeFormat)
	return link, nil
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	item, err := s.ownedTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	cancelled, err := s.manager.Cancel(r.Context(), item.ID)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, FromItem(cancelled))
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	item, err := s.ownedTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if err := s.manager.Delete(r.Context(), item.ID); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	name := pathParam(r, "file")
	ctx := r.Context()

	if token := r.URL.Query().Get("token"); token != "" && s.tokens != nil {
		if err := s.tokens.Verify(token, id, name); err != nil {
			writeError(w, r, s.logger, err)
			return
		}
		ctx = withPrincipal(ctx, Principal{Admin: true})
	} else {
		p, ok := s.auth.Authenticate(r.Header.Get(APIKeyHeader))
		if !ok {
			writeError(w, r, s.logger, errUnauthorized)
			return
		}
		ctx = withPrincipal(ctx, p)
	}

	item, err := s.ownedTask(ctx, id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if item.Status != queue.StatusCompleted {
		writeError(w, r, s.logger, fmt.Errorf("%w: %s is %s", errNotReady, item.ID, item.Status))
		return
	}
	path, err := s.manager.Layout().Path(item.ID, name)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.Header().Set("Content-Type", subtitle.ContentTypeForFile(name))
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// pathParam returns a decoded URL parameter. chi matches on the raw path
// when the request carried escapes the default encoding would not produce.
func pathParam(r *http.Request, key string) string {
	value := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return value
	}
	if decoded, err := url.PathUnescape(value); err == nil {
		return decoded
	}
	return value
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	summary := s.manager.Status(r.Context())
	var quota queue.QuotaStatus
	if gate := s.manager.Store().Quota(); gate != nil {
		quota = gate.Status()
	}
	writeJSON(w, http.StatusOK, FromStatusSummary(summary, quota))
}

package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/chfs/chfs/internal/chfserr"
	"github.com/chfs/chfs/internal/directtransfer"
	"github.com/chfs/chfs/internal/middleware"
	"github.com/chfs/chfs/internal/storage"
	"github.com/go-chi/chi/v5"
)

// handleTransferRecipients lists every configured user other than the
// caller, a small convenience the distilled spec's route table implies
// but doesn't spell out the payload for.
func (s *Server) handleTransferRecipients(w http.ResponseWriter, r *http.Request) {
	user, ok := s.principal(w, r)
	if !ok {
		return
	}
	snap := s.cfg.Current()
	out := make([]string, 0, len(snap.Users))
	for _, u := range snap.Users {
		if u.Name != user {
			out = append(out, u.Name)
		}
	}
	middleware.RespondJSON(w, out)
}

func (s *Server) handleTransferSend(w http.ResponseWriter, r *http.Request) {
	user, ok := s.principal(w, r)
	if !ok {
		return
	}

	recipient := r.FormValue("recipient")
	if recipient == "" {
		middleware.RespondError(w, chfserr.New(chfserr.KindBadRequest, "recipient is required"))
		return
	}
	if recipient == user {
		middleware.RespondError(w, chfserr.New(chfserr.KindBadRequest, "cannot send a transfer to yourself"))
		return
	}
	if _, ok := s.cfg.Current().UserByName(recipient); !ok {
		middleware.RespondError(w, chfserr.New(chfserr.KindNotFound, "recipient not found"))
		return
	}

	var expiresIn time.Duration
	if v := r.FormValue("expiresIn"); v != "" {
		secs, err := strconv.Atoi(v)
		if err == nil && secs > 0 {
			expiresIn = time.Duration(secs) * time.Second
		}
	}

	maxSize := s.cfg.Current().UI.MaxUploadSize
	if maxSize <= 0 {
		maxSize = defaultMaxUploadSize
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.RespondError(w, chfserr.New(chfserr.KindBadRequest, "missing file part"))
		return
	}
	defer file.Close()

	entry, err := s.transfers.Create(user, recipient, header.Filename, header.Header.Get("Content-Type"), file, maxSize, expiresIn)
	if err != nil {
		middleware.RespondError(w, err)
		return
	}
	middleware.RespondJSON(w, entry)
}

func (s *Server) handleTransferList(w http.ResponseWriter, r *http.Request) {
	user, ok := s.principal(w, r)
	if !ok {
		return
	}
	dir := directtransfer.Direction(r.URL.Query().Get("direction"))
	if dir == "" {
		dir = directtransfer.DirectionIncoming
	}
	list, err := s.transfers.List(user, dir)
	if err != nil {
		middleware.RespondError(w, err)
		return
	}
	middleware.RespondJSON(w, list)
}

func (s *Server) handleTransferDownload(w http.ResponseWriter, r *http.Request) {
	user, ok := s.principal(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	entry, path, err := s.transfers.PrepareDownload(id, user)
	if err != nil {
		middleware.RespondError(w, err)
		return
	}

	f, openErr := os.Open(path)
	if openErr != nil {
		middleware.RespondError(w, chfserr.New(chfserr.KindInternal, openErr.Error()))
		return
	}
	defer func() {
		f.Close()
		s.transfers.FinishDownload(entry)
	}()

	w.Header().Set("Content-Disposition", storage.ContentDisposition(entry.Filename))
	w.Header().Set("Content-Type", entry.ContentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", entry.Size))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

func (s *Server) handleTransferDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := s.principal(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	entry, err := s.transfers.Delete(id, user)
	if err != nil {
		middleware.RespondError(w, err)
		return
	}

	action := "dismissed"
	if entry.Sender == user {
		action = "cancelled"
	}
	middleware.RespondJSON(w, map[string]string{"action": action})
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/studentid/walletpass/internal/logger"
	"github.com/studentid/walletpass/internal/pkpass"
	"github.com/studentid/walletpass/internal/storage"
)

// DownloadSource is an object store that serves its own signed links (the file backend).
type DownloadSource interface {
	VerifyDownloadToken(token, objectPath string) error
	Open(objectPath string) (*os.File, error)
}

// HandleDownload godoc
//
//	@Summary		Download a pass
//	@Description	Serves a stored .pkpass archive. The token is issued with the emailed link and is only
//	@Description	valid for the named object until it expires.
//	@Tags			Passes
//	@Produce		application/vnd.apple.pkpass
//	@Param			path	path		string	true	"Object path, e.g. 2023-2024/SJ-2023-2024-12345.pkpass"
//	@Param			token	query		string	true	"Signed download token"
//	@Success		200		{file}		file	"The pass archive"
//	@Failure		403		{string}	string	"Invalid or expired token"
//	@Failure		404		{string}	string	"Not found"
//	@Router			/downloads/{path} [get]
func HandleDownload(src DownloadSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logger.ContextRequestLogger(r.Context())
		// chi routes on the raw path only when the request path has a non canonical escaping
		objectPath := chi.URLParam(r, "*")
		if r.URL.RawPath != "" {
			unescaped, err := url.PathUnescape(objectPath)
			if err != nil {
				http.NotFound(w, r)
				return
			}
			objectPath = unescaped
		}

		if err := storage.ValidateObjectPath(objectPath); err != nil {
			http.NotFound(w, r)
			return
		}

		if err := src.VerifyDownloadToken(r.URL.Query().Get("token"), objectPath); err != nil {
			reqLogger.Warn("download rejected",
				slog.String("object", objectPath),
				slog.String("error", err.Error()),
			)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		f, err := src.Open(objectPath)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			reqLogger.Error("failed to open stored pass",
				slog.String("object", objectPath),
				slog.String("error", err.Error()),
			)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		name := path.Base(objectPath)
		w.Header().Set("Content-Type", pkpass.ContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		w.Header().Set("Cache-Control", "private, no-store")
		http.ServeContent(w, r, name, info.ModTime(), f)
	}
}

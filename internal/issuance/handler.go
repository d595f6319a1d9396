package issuance

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/studentid/walletpass/internal/docstore"
	"github.com/studentid/walletpass/internal/logger"
	"github.com/studentid/walletpass/internal/metrics"
	"github.com/studentid/walletpass/internal/pkpass"
	"github.com/studentid/walletpass/internal/services"
	"github.com/studentid/walletpass/internal/storage"
)

// UserRecorder persists the user record of an issued pass.
type UserRecorder interface {
	Save(ctx context.Context, record docstore.UserPassRecord) error
}

// Dependencies are the collaborators of the handler, constructed once at startup.
type Dependencies struct {
	Builder PassBuilder
	Images  services.ImageFetcher
	Store   storage.ObjectStore
	Users   UserRecorder
	Mailer  services.Mailer
}

// Options configure the handler.
type Options struct {
	SerialPrefix string

	// SignedURLTTL is the lifetime of the emailed download link
	SignedURLTTL time.Duration

	// LegacyStatusCodes reports failures other than validation, storage and email with status 200
	LegacyStatusCodes bool
}

// Handler handles pass issuance requests.
type Handler struct {
	deps Dependencies
	opts Options

	newToken func() (string, error)
}

func NewHandler(deps Dependencies, opts Options) (*Handler, error) {
	if deps.Builder == nil || deps.Images == nil || deps.Store == nil || deps.Users == nil || deps.Mailer == nil {
		return nil, fmt.Errorf("issuance handler requires a builder, image fetcher, object store, user recorder and mailer")
	}
	if opts.SerialPrefix == "" {
		opts.SerialPrefix = DefaultSerialPrefix
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = 24 * time.Hour
	}
	return &Handler{
		deps:     deps,
		opts:     opts,
		newToken: NewAuthenticationToken,
	}, nil
}

// ServeHTTP godoc
//
//	@Summary		Issue a student ID pass
//	@Description	Builds and signs an Apple Wallet student ID pass, stores it, records the recipient and
//	@Description	emails a 24 hour download link (or the pass as an attachment).
//	@Description
//	@Description	imageURL is either an http(s) URL of the student photo or the base64 encoded photo.
//	@Description
//	@Description	Failures after validation other than storage and email failures are reported
//	@Description	with status 200 and the error message unless LEGACY_STATUS_CODES=false.
//	@Tags		Passes
//	@Accept		json
//	@Produce	json
//	@Param		request	body		issuance.PassRequest		true	"Student details"
//	@Success	200		{object}	issuance.MessageResponse	"Pass Created"
//	@Failure	400		{object}	issuance.MessageResponse	"Missing required fields, Invalid email, Invalid image or Failed sending pass"
//	@Failure	403		{object}	issuance.MessageResponse	"Origin not allowed"
//	@Failure	500		{object}	issuance.MessageResponse	"Storage failure"
//	@Router		/pass [post]
//	@Router		/v1/passes [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer r.Body.Close()
	defer h.recoverPanic(w, r)

	req, err := DecodePassRequest(r.Body)
	if err == nil {
		err = ValidatePassRequest(req)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.Issue(ctx, req); err != nil {
		h.fail(w, r, err)
		return
	}

	metrics.PassRequestsTotal.WithLabelValues("created").Inc()
	logger.ContextRequestLogger(ctx).Info("Created pass")
	RespondWithMessage(w, http.StatusOK, MsgPassCreated)
}

// Issue runs the pipeline for a validated request.
func (h *Handler) Issue(ctx context.Context, req PassRequest) error {
	reqLogger := logger.ContextRequestLogger(ctx)

	token, err := h.newToken()
	if err != nil {
		return WrapUnhandledError(err, metrics.StageBuild)
	}
	ids := PassIdentifiers{
		SerialNumber:        SerialNumber(h.opts.SerialPrefix, req.SchoolYear, req.BarcodeData),
		AuthenticationToken: token,
	}
	passPath := PassFilePath(req.SchoolYear, ids.SerialNumber)

	logger.ContextWithLogAttrs(ctx, slog.String("serial_number", ids.SerialNumber))
	reqLogger = reqLogger.With(slog.String("serial_number", ids.SerialNumber))

	var photo []byte
	err = stage(metrics.StageImage, func() (err error) {
		photo, err = h.deps.Images.FetchImage(ctx, req.ImageURL)
		return err
	})
	if err != nil {
		return WrapUnhandledError(err, metrics.StageImage)
	}

	var archive []byte
	err = stage(metrics.StageBuild, func() (err error) {
		archive, err = h.deps.Builder.BuildPass(req, ids, photo)
		return err
	})
	if err != nil {
		return WrapUnhandledError(err, metrics.StageBuild)
	}
	metrics.PassSizeBytes.Observe(float64(len(archive)))

	err = stage(metrics.StageStore, func() error {
		return h.deps.Store.Put(ctx, passPath, archive, pkpass.ContentType)
	})
	if err != nil {
		reqLogger.Error("error at file upload", slog.String("path", passPath), slog.String("error", err.Error()))
		return WrapStorageError(err, metrics.StageStore)
	}
	reqLogger.Info("file upload successful", slog.String("path", passPath))

	// the record is written before the response but a failure does not fail the request
	err = stage(metrics.StageRecord, func() error {
		return h.deps.Users.Save(ctx, docstore.UserPassRecord{
			Name:                req.Name,
			Email:               req.Email,
			PassFileLocation:    passPath,
			AuthenticationToken: ids.AuthenticationToken,
		})
	})
	if err != nil {
		reqLogger.Error("error saving user record", slog.String("error", err.Error()))
	}

	var link string
	err = stage(metrics.StageLink, func() (err error) {
		link, err = h.deps.Store.SignedReadURL(ctx, passPath, h.opts.SignedURLTTL)
		return err
	})
	if err != nil {
		reqLogger.Warn("error generating download link", slog.String("error", err.Error()))
		link = ""
	}

	err = stage(metrics.StageEmail, func() error {
		return h.deps.Mailer.SendPassEmail(ctx, services.PassEmail{
			To:          req.Email,
			Name:        req.Name,
			DownloadURL: link,
			Pass:        archive,
		})
	})
	if err != nil {
		return WrapEmailError(err, metrics.StageEmail)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	outcome := "failed"
	switch KindOf(err) {
	case KindValidation:
		outcome = "invalid"
		metrics.StageFailuresTotal.WithLabelValues(metrics.StageValidate).Inc()
	case KindStorage:
		outcome = "storage_failed"
	case KindEmail:
		outcome = "email_failed"
	case KindTooLarge:
		outcome = "too_large"
	}
	metrics.PassRequestsTotal.WithLabelValues(outcome).Inc()
	RespondWithError(w, r, err, h.opts.LegacyStatusCodes)
}

// recoverPanic reports a panic in the pipeline like any other unhandled failure. Nothing has
// been written to w before the pipeline returns, so the mapped response can still be sent.
func (h *Handler) recoverPanic(w http.ResponseWriter, r *http.Request) {
	p := recover()
	if p == nil {
		return
	}
	if p == http.ErrAbortHandler {
		panic(p)
	}
	logger.ContextRequestLogger(r.Context()).Error("panic in pass issuance",
		slog.Any("panic", p),
		slog.String("stack", string(debug.Stack())),
	)
	h.fail(w, r, WrapUnhandledError(fmt.Errorf("%v", p), "panic"))
}

// stage times fn and counts its failure
func stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StageFailuresTotal.WithLabelValues(name).Inc()
	}
	return err
}

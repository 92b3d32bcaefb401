package pinbox

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
)

const httpTimeoutsMs = 3000
const maxBodyBytes = 1 << 16

type VideoStatuser interface {
	Status() VideoStatus
}

type errorResponse struct {
	Message string `json:"message"`
}

// Server is the REST surface over the registry.
type Server struct {
	Addr string

	registry *Registry
	video    VideoStatuser
	server   *http.Server
	logger   *log.Logger
}

func NewServer(addr string, registry *Registry, video VideoStatuser) *Server {
	return &Server{
		Addr:     addr,
		registry: registry,
		video:    video,
		logger:   log.WithPrefix("http"),
	}
}

// Handler routes /pins/name/:name through the :ref/:name pair, httprouter
// doesn't allow a static segment next to the :id wildcard.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/pins/", s.handleList)
	router.POST("/pins/", s.handleCreate)
	router.GET("/pins/:ref", s.handleGet)
	router.PUT("/pins/:ref", s.handlePut)
	router.GET("/pins/:ref/:name", s.handleGetByName)
	router.PUT("/pins/:ref/:name", s.handlePutByName)
	router.GET("/video", s.handleVideo)
	return router
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	httpTimeout := httpTimeoutsMs * time.Millisecond

	s.server = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       httpTimeout,
		ReadHeaderTimeout: httpTimeout,
		// pulses block the request for pulse + gap
		WriteTimeout: 2 * httpTimeout,
		IdleTimeout:  2 * httpTimeout,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		defer cancel()
		s.server.Shutdown(shutCtx)
	}()

	s.logger.Info("listening", "addr", s.Addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.logger.Warn("failed to write response", "err", err)
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrPinNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoPayload), errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrInvalidDirection), errors.Is(err, ErrInvalidMethod),
		errors.Is(err, ErrUnknownDriver):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	s.writeJSON(w, status, errorResponse{Message: err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(ErrNoPayload, err.Error())
	}
	raw := json.RawMessage{}
	err = json.Unmarshal(body, &raw)
	if err != nil {
		return errors.Wrap(ErrNoPayload, err.Error())
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ErrNoPayload
	}
	err = json.Unmarshal(raw, v)
	if err != nil {
		return errors.Wrap(ErrNoPayload, err.Error())
	}
	return nil
}

func pinId(p httprouter.Params) (int, error) {
	id, err := strconv.Atoi(p.ByName("ref"))
	if err != nil {
		return 0, errors.Wrapf(ErrPinNotFound, "pin %s", p.ByName("ref"))
	}
	return id, nil
}

// byName checks that a two segment path is /pins/name/:name.
func byName(p httprouter.Params) (string, error) {
	if p.ByName("ref") != "name" {
		return "", errors.Wrapf(ErrPinNotFound, "no route %s/%s", p.ByName("ref"), p.ByName("name"))
	}
	return p.ByName("name"), nil
}

// statePatch reads ?state= so plain GETs can drive outputs.
func statePatch(r *http.Request) *PinPatch {
	state := r.URL.Query().Get("state")
	if len(state) == 0 {
		return nil
	}
	return StatePatch(State(state))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	rec := PinRecord{}
	err := decodeBody(r, &rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	created, err := s.registry.Create(rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("pin created", "id", created.Id, "pin_num", created.PinNum, "direction", created.Direction)
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id, err := pinId(p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var rec PinRecord
	if patch := statePatch(r); patch != nil {
		rec, err = s.registry.Update(id, patch)
	} else {
		rec, err = s.registry.Get(id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id, err := pinId(p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	patch := &PinPatch{}
	err = decodeBody(r, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rec, err := s.registry.Update(id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetByName(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	name, err := byName(p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var rec PinRecord
	if patch := statePatch(r); patch != nil {
		rec, err = s.registry.UpdateByName(name, patch)
	} else {
		rec, err = s.registry.GetByName(name)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePutByName(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	name, err := byName(p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	patch := &PinPatch{}
	err = decodeBody(r, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rec, err := s.registry.UpdateByName(name, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.video == nil {
		s.writeJSON(w, http.StatusOK, VideoStatus{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.video.Status())
}

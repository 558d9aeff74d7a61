package httpserver

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meetsmatch/ridemap/internal/errors"
	"github.com/meetsmatch/ridemap/internal/geo"
	"github.com/meetsmatch/ridemap/internal/notice"
	"github.com/meetsmatch/ridemap/internal/session"
	"github.com/meetsmatch/ridemap/internal/tracking"
)

type createSessionRequest struct {
	Geolocation bool   `json:"geolocation"`
	Language    string `json:"language"`
}

type coordinateRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

func (r coordinateRequest) coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: *r.Lat, Lng: *r.Lng}
}

type selectRequest struct {
	Kind string `json:"kind" binding:"required"`
}

type fixRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	Accuracy  float64  `json:"accuracy"`
}

type fixErrorRequest struct {
	Code    int    `json:"code" binding:"required"`
	Message string `json:"message"`
}

// bind decodes the JSON body into req, attaching a validation error on failure.
func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		_ = c.Error(errors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// session resolves the :id path parameter, attaching an error when the
// session does not exist.
func (s *Server) session(c *gin.Context) (*session.Session, bool) {
	sess, err := s.manager.Get(c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}
	return sess, true
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}

	sess, err := s.manager.Create(c.Request.Context(), session.Options{
		Geolocation: req.Geolocation,
		Language:    req.Language,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, sess.Snapshot())
}

func (s *Server) getSession(c *gin.Context) {
	snap, err := s.manager.LoadSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) closeSession(c *gin.Context) {
	if err := s.manager.Close(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) pickerMoveStart(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.PickerMoveStart(); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sess.PickerStatus())
}

func (s *Server) pickerMoveEnd(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req coordinateRequest
	if !bind(c, &req) {
		return
	}
	if err := sess.PickerMoveEnd(req.coordinate()); err != nil {
		_ = c.Error(err)
		return
	}
	s.manager.Persist(c.Request.Context(), sess)
	c.JSON(http.StatusAccepted, sess.PickerStatus())
}

func (s *Server) pickerAddress(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.PickerStatus())
}

func (s *Server) pickerConfirm(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	loc, err := sess.Confirm(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	s.manager.Persist(c.Request.Context(), sess)
	c.JSON(http.StatusOK, loc)
}

func (s *Server) rideSelect(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req selectRequest
	if !bind(c, &req) {
		return
	}
	mode, err := sess.Select(req.Kind)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": mode})
}

func (s *Server) rideClick(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req coordinateRequest
	if !bind(c, &req) {
		return
	}
	state, err := sess.RideClick(req.coordinate())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if state.Picked {
		s.manager.Persist(c.Request.Context(), sess)
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) rideClear(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.ClearRoute(); err != nil {
		_ = c.Error(err)
		return
	}
	s.manager.Persist(c.Request.Context(), sess)
	c.Status(http.StatusNoContent)
}

func (s *Server) getMap(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	handle, err := sess.Map(c.Param("map"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handle.Snapshot())
}

func (s *Server) trackingToggle(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	watching, err := sess.ToggleTracking()
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"watching": watching})
}

func (s *Server) trackingFix(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req fixRequest
	if !bind(c, &req) {
		return
	}
	fix := tracking.Fix{
		Coordinate: geo.Coordinate{Lat: *req.Latitude, Lng: *req.Longitude},
		Accuracy:   req.Accuracy,
	}
	if err := sess.PushFix(fix); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) trackingError(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req fixErrorRequest
	if !bind(c, &req) {
		return
	}
	if err := sess.PushFixError(tracking.FixError{Code: req.Code, Message: req.Message}); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) trackingCenter(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	err := sess.CenterOnMe(c.Request.Context())
	if stderrors.Is(err, tracking.ErrNoFix) {
		_ = c.Error(errors.NewConflictError(err.Error()).WithDetails("toggle tracking and wait for a position fix"))
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) notices(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	pending := sess.Notices()
	if pending == nil {
		pending = []notice.Notice{}
	}
	c.JSON(http.StatusOK, gin.H{"notices": pending})
}

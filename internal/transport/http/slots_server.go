package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"consulta/backend/internal/domain"
	"consulta/backend/internal/service/scheduling"
	"consulta/backend/internal/store"
)

type schedulingService interface {
	Generate(ctx context.Context, horizonDays int) (int, error)
	AvailableSlots(ctx context.Context, days int) ([]domain.Slot, error)
	NearestAvailableDay(ctx context.Context) (*scheduling.DayAvailability, error)
	Book(ctx context.Context, in scheduling.BookInput) (domain.Slot, error)
	CancelBooking(ctx context.Context, slotID, occupantRef string) (bool, error)
	ListBookings(ctx context.Context, occupantRef string) ([]domain.Slot, error)
	Stats(ctx context.Context) (scheduling.Stats, error)
	FormatSlot(slot domain.Slot) string
}

type SlotsServer struct {
	service            schedulingService
	log                *slog.Logger
	defaultWindowDays  int
	defaultHorizonDays int
}

func NewSlotsServer(svc schedulingService, defaultWindowDays, defaultHorizonDays int, log *slog.Logger) *SlotsServer {
	if log == nil {
		log = slog.Default()
	}
	return &SlotsServer{
		service:            svc,
		log:                log.With(slog.String("component", "http.slots")),
		defaultWindowDays:  defaultWindowDays,
		defaultHorizonDays: defaultHorizonDays,
	}
}

func (s *SlotsServer) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/slots", s.availableSlots)
	rg.GET("/slots/nearest", s.nearestDay)
	rg.POST("/bookings", s.createBooking)
	rg.DELETE("/bookings/:slot_id", s.cancelBooking)
	rg.GET("/bookings", s.listBookings)
	rg.POST("/admin/generate", s.generate)
	rg.GET("/admin/stats", s.stats)
}

type slotResponse struct {
	ID          string     `json:"id"`
	Date        string     `json:"date"`
	StartTime   string     `json:"start_time"`
	EndTime     string     `json:"end_time"`
	Status      string     `json:"status"`
	Label       string     `json:"label"`
	OccupantRef string     `json:"occupant_ref,omitempty"`
	SessionRef  string     `json:"session_ref,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Contact     string     `json:"contact,omitempty"`
	BookedAt    *time.Time `json:"booked_at,omitempty"`
}

func (s *SlotsServer) toSlotResponse(slot domain.Slot) slotResponse {
	out := slotResponse{
		ID:        slot.ID,
		Date:      slot.Date.Format("2006-01-02"),
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
		Status:    string(slot.Status),
		Label:     s.service.FormatSlot(slot),
	}
	if occ := slot.Occupancy(); occ != nil {
		out.OccupantRef = occ.OccupantRef
		out.SessionRef = occ.SessionRef
		out.DisplayName = occ.DisplayName
		out.Contact = occ.Contact
		out.BookedAt = occ.BookedAt
	}
	return out
}

func (s *SlotsServer) toSlotResponses(slots []domain.Slot) []slotResponse {
	out := make([]slotResponse, 0, len(slots))
	for _, slot := range slots {
		out = append(out, s.toSlotResponse(slot))
	}
	return out
}

func (s *SlotsServer) availableSlots(c *gin.Context) {
	log := s.log.With(slog.String("handler", "availableSlots"))

	days := s.defaultWindowDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			log.Warn("invalid request", slog.String("reason", "bad_days"), slog.String("days", raw))
			errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", "days must be an integer")
			return
		}
		days = parsed
	}

	slots, err := s.service.AvailableSlots(c.Request.Context(), days)
	if err != nil {
		var vErr *scheduling.ValidationError
		if errors.As(err, &vErr) {
			log.Warn("invalid request", slog.Any("err", err))
			errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", vErr.Error())
			return
		}
		log.Error("available slots query failed", slog.Any("err", err))
		errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load slots")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"slots":   s.toSlotResponses(slots),
	})
}

func (s *SlotsServer) nearestDay(c *gin.Context) {
	log := s.log.With(slog.String("handler", "nearestDay"))

	day, err := s.service.NearestAvailableDay(c.Request.Context())
	if err != nil {
		log.Error("nearest day query failed", slog.Any("err", err))
		errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load availability")
		return
	}
	if day == nil {
		// Normal outcome: nothing open within the lookahead bound.
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"available": false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"available": true,
		"date":      day.Date.Format("2006-01-02"),
		"label":     day.Label,
		"slots":     s.toSlotResponses(day.Slots),
	})
}

type createBookingRequest struct {
	SlotID      string `json:"slot_id"`
	OccupantRef string `json:"occupant_ref"`
	SessionRef  string `json:"session_ref"`
	DisplayName string `json:"display_name"`
	Contact     string `json:"contact"`
}

func (s *SlotsServer) createBooking(c *gin.Context) {
	log := s.log.With(slog.String("handler", "createBooking"))

	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_body"), slog.Any("err", err))
		errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	slot, err := s.service.Book(c.Request.Context(), scheduling.BookInput{
		SlotID:      req.SlotID,
		OccupantRef: req.OccupantRef,
		SessionRef:  req.SessionRef,
		DisplayName: req.DisplayName,
		Contact:     req.Contact,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Info("booking conflict",
				slog.String("slot_id", req.SlotID),
				slog.String("occupant_ref", req.OccupantRef),
			)
			errorJSON(c, http.StatusConflict, "SLOT_CONFLICT", "slot is no longer available, pick another time")
			return
		}
		var vErr *scheduling.ValidationError
		if errors.As(err, &vErr) {
			log.Warn("invalid request", slog.Any("err", err))
			errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", vErr.Error())
			return
		}
		log.Error("booking failed", slog.Any("err", err), slog.String("slot_id", req.SlotID))
		errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to book slot")
		return
	}

	log.Info("slot booked",
		slog.String("slot_id", slot.ID),
		slog.String("occupant_ref", req.OccupantRef),
		slog.String("date", slot.Date.Format("2006-01-02")),
		slog.String("start_time", slot.StartTime),
	)

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"slot":    s.toSlotResponse(slot),
	})
}

func (s *SlotsServer) cancelBooking(c *gin.Context) {
	log := s.log.With(slog.String("handler", "cancelBooking"))

	slotID := c.Param("slot_id")
	occupantRef := c.Query("occupant_ref")

	cancelled, err := s.service.CancelBooking(c.Request.Context(), slotID, occupantRef)
	if err != nil {
		var vErr *scheduling.ValidationError
		if errors.As(err, &vErr) {
			log.Warn("invalid request", slog.Any("err", err))
			errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", vErr.Error())
			return
		}
		log.Error("cancellation failed", slog.Any("err", err), slog.String("slot_id", slotID))
		errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to cancel booking")
		return
	}

	if cancelled {
		log.Info("booking cancelled",
			slog.String("slot_id", slotID),
			slog.String("occupant_ref", occupantRef),
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"cancelled": cancelled,
	})
}

func (s *SlotsServer) listBookings(c *gin.Context) {
	log := s.log.With(slog.String("handler", "listBookings"))

	slots, err := s.service.ListBookings(c.Request.Context(), c.Query("occupant_ref"))
	if err != nil {
		var vErr *scheduling.ValidationError
		if errors.As(err, &vErr) {
			log.Warn("invalid request", slog.Any("err", err))
			errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", vErr.Error())
			return
		}
		log.Error("bookings query failed", slog.Any("err", err))
		errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load bookings")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"bookings": s.toSlotResponses(slots),
	})
}

type generateRequest struct {
	HorizonDays *int `json:"horizon_days"`
}

func (s *SlotsServer) generate(c *gin.Context) {
	log := s.log.With(slog.String("handler", "generate"))

	// The body is optional: absent means defaults, but a present body
	// must parse.
	var req generateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Warn("invalid request", slog.String("reason", "bad_body"), slog.Any("err", err))
			errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
			return
		}
	}

	horizonDays := s.defaultHorizonDays
	if req.HorizonDays != nil {
		horizonDays = *req.HorizonDays
	}

	inserted, err := s.service.Generate(c.Request.Context(), horizonDays)
	if err != nil {
		var vErr *scheduling.ValidationError
		if errors.As(err, &vErr) {
			log.Warn("invalid request", slog.Any("err", err))
			errorJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", vErr.Error())
			return
		}
		log.Error("manual generation failed", slog.Any("err", err))
		errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "slot generation failed")
		return
	}

	log.Info("manual generation completed",
		slog.Int("inserted", inserted),
		slog.Int("horizon_days", horizonDays),
	)

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"inserted":     inserted,
		"horizon_days": horizonDays,
	})
}

func (s *SlotsServer) stats(c *gin.Context) {
	log := s.log.With(slog.String("handler", "stats"))

	stats, err := s.service.Stats(c.Request.Context())
	if err != nil {
		log.Error("stats query failed", slog.Any("err", err))
		errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load stats")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"total":   stats.Total,
		"open":    stats.Open,
		"booked":  stats.Booked,
	})
}

func errorJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

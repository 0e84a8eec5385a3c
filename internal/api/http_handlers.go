package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"staybook/internal/domain"
	"staybook/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type createBookingRequest struct {
	PropertyID int64  `json:"property_id" validate:"required,gt=0"`
	CheckIn    string `json:"check_in" validate:"required"`
	CheckOut   string `json:"check_out" validate:"required"`
	Guests     int    `json:"guests"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed cancelled completed"`
}

type bookingDTO struct {
	ID         int64     `json:"id"`
	PropertyID int64     `json:"property_id"`
	UserID     int64     `json:"user_id"`
	CheckIn    string    `json:"check_in"`
	CheckOut   string    `json:"check_out"`
	Nights     int       `json:"nights"`
	Guests     int       `json:"guests"`
	TotalPrice int64     `json:"total_price"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type reservationDTO struct {
	Booking bookingDTO            `json:"booking"`
	Price   models.PriceBreakdown `json:"price"`
}

type propertyDTO struct {
	ID            int64              `json:"id"`
	HostID        int64              `json:"host_id"`
	Name          string             `json:"name"`
	PricePerNight int64              `json:"price_per_night"`
	MaxGuests     int                `json:"max_guests"`
	NumberOfUnits int                `json:"number_of_units"`
	Availability  []models.DateRange `json:"availability"`
}

func toBookingDTO(b *models.Booking) bookingDTO {
	return bookingDTO{
		ID:         b.ID,
		PropertyID: b.PropertyID,
		UserID:     b.UserID,
		CheckIn:    b.CheckIn.Format(models.DateLayout),
		CheckOut:   b.CheckOut.Format(models.DateLayout),
		Nights:     b.Nights,
		Guests:     b.Guests,
		TotalPrice: b.TotalPrice,
		Status:     string(b.Status),
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func toBookingDTOs(bookings []*models.Booking) []bookingDTO {
	out := make([]bookingDTO, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingDTO(b))
	}
	return out
}

func toPropertyDTO(p *models.Property) propertyDTO {
	windows := p.Availability
	if windows == nil {
		windows = []models.DateRange{}
	}
	return propertyDTO{
		ID:            p.ID,
		HostID:        p.HostID,
		Name:          p.Name,
		PricePerNight: p.PricePerNight,
		MaxGuests:     p.MaxGuests,
		NumberOfUnits: p.Units(),
		Availability:  windows,
	}
}

// POST /api/v1/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var body createBookingRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	checkIn, checkOut, err := parseStay(body.CheckIn, body.CheckOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}

	res, err := s.svc.CreateBooking(r.Context(), models.BookingRequest{
		PropertyID: body.PropertyID,
		UserID:     userID,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Guests:     body.Guests,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, reservationDTO{Booking: toBookingDTO(res.Booking), Price: res.Price})
}

// GET /api/v1/bookings/{id}
func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	b, err := s.svc.GetBooking(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if b.UserID != userID {
		// The property's host may read it too.
		p, err := s.svc.GetAvailability(r.Context(), b.PropertyID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if p.HostID != userID {
			s.writeServiceError(w, r, domain.ErrForbidden)
			return
		}
	}

	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// POST /api/v1/bookings/{id}/cancel
func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	b, err := s.svc.CancelBooking(r.Context(), id, userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// POST /api/v1/bookings/{id}/complete
func (s *HTTPServer) handleCompleteBooking(w http.ResponseWriter, r *http.Request) {
	hostID, ok := s.userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	b, err := s.svc.CompleteBooking(r.Context(), id, hostID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// PUT /api/v1/bookings/{id}/status
func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var body updateStatusRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	target, err := models.ParseBookingStatus(body.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
		return
	}

	b, err := s.svc.UpdateStatus(r.Context(), id, target, actorID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// GET /api/v1/users/me/bookings
func (s *HTTPServer) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	bookings, err := s.svc.ListUserBookings(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": toBookingDTOs(bookings)})
}

// GET /api/v1/properties
func (s *HTTPServer) handleListProperties(w http.ResponseWriter, r *http.Request) {
	properties, err := s.svc.ListProperties(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]propertyDTO, 0, len(properties))
	for _, p := range properties {
		out = append(out, toPropertyDTO(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": out})
}

// GET /api/v1/properties/{id}/availability
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	p, err := s.svc.GetAvailability(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPropertyDTO(p))
}

// GET /api/v1/properties/{id}/quote?check_in=&check_out=&guests=
func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	checkIn, checkOut, err := parseStay(q.Get("check_in"), q.Get("check_out"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}
	guests := 1
	if raw := strings.TrimSpace(q.Get("guests")); raw != "" {
		guests, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_guest_count", "guests must be an integer")
			return
		}
	}

	price, err := s.svc.Quote(r.Context(), models.BookingRequest{
		PropertyID: id,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Guests:     guests,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, price)
}

// GET /api/v1/properties/{id}/bookings
func (s *HTTPServer) handlePropertyBookings(w http.ResponseWriter, r *http.Request) {
	id, ok := s.hostProperty(w, r)
	if !ok {
		return
	}

	bookings, err := s.svc.ListPropertyBookings(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": toBookingDTOs(bookings)})
}

// GET /api/v1/properties/{id}/bookings/export
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.hostProperty(w, r)
	if !ok {
		return
	}

	report, err := s.svc.ExportPropertyBookings(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(report.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report.Data)
}

// hostProperty resolves the path property and checks that the caller hosts it.
func (s *HTTPServer) hostProperty(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := s.userID(w, r)
	if !ok {
		return 0, false
	}
	id, ok := pathID(w, r)
	if !ok {
		return 0, false
	}

	p, err := s.svc.GetAvailability(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return 0, false
	}
	if p.HostID != userID {
		s.writeServiceError(w, r, domain.ErrForbidden)
		return 0, false
	}
	return id, true
}

func (s *HTTPServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func parseStay(rawIn, rawOut string) (time.Time, time.Time, error) {
	checkIn, err := models.ParseDay(rawIn)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("check_in: %w", err)
	}
	checkOut, err := models.ParseDay(rawOut)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("check_out: %w", err)
	}
	return checkIn, checkOut, nil
}

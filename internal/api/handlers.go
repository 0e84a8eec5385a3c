package api

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"staybook/internal/domain"
	"staybook/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	reservationServiceName = "staybook.reservation.v1.ReservationService"

	methodCreateBooking   = "/" + reservationServiceName + "/CreateBooking"
	methodCancelBooking   = "/" + reservationServiceName + "/CancelBooking"
	methodUpdateStatus    = "/" + reservationServiceName + "/UpdateStatus"
	methodGetAvailability = "/" + reservationServiceName + "/GetAvailability"
)

// ReservationServer is the gRPC surface. Requests and responses are
// google.protobuf.Struct so that no generated code is needed.
type ReservationServer interface {
	CreateBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAvailability(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var reservationServiceDesc = grpc.ServiceDesc{
	ServiceName: reservationServiceName,
	HandlerType: (*ReservationServer)(nil),
	Methods: []grpc.MethodDesc{
		structMethod("CreateBooking", ReservationServer.CreateBooking),
		structMethod("CancelBooking", ReservationServer.CancelBooking),
		structMethod("UpdateStatus", ReservationServer.UpdateStatus),
		structMethod("GetAvailability", ReservationServer.GetAvailability),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "staybook/reservation/v1/reservation.proto",
}

func RegisterReservationServer(s grpc.ServiceRegistrar, srv ReservationServer) {
	s.RegisterService(&reservationServiceDesc, srv)
}

type structCall func(ReservationServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func structMethod(name string, call structCall) grpc.MethodDesc {
	fullMethod := "/" + reservationServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ReservationServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ReservationServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ReservationService adapts domain.ReservationService to gRPC.
type ReservationService struct {
	svc          domain.ReservationService
	userIDHeader string
}

func NewReservationService(svc domain.ReservationService, userIDHeader string) *ReservationService {
	return &ReservationService{svc: svc, userIDHeader: userIDHeader}
}

func (s *ReservationService) CreateBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	propertyID, err := idField(in, "property_id")
	if err != nil {
		return nil, err
	}
	checkIn, checkOut, err := parseStay(stringField(in, "check_in"), stringField(in, "check_out"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	guests, err := intField(in, "guests")
	if err != nil {
		return nil, err
	}

	res, err := s.svc.CreateBooking(ctx, models.BookingRequest{
		PropertyID: propertyID,
		UserID:     userID,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Guests:     int(guests),
	})
	if err != nil {
		return nil, grpcError(err)
	}

	return structpb.NewStruct(map[string]any{
		"booking": bookingFields(res.Booking),
		"price": map[string]any{
			"nights":          res.Price.Nights,
			"price_per_night": res.Price.PricePerNight,
			"subtotal":        res.Price.Subtotal,
			"fee":             res.Price.Fee,
			"total":           res.Price.Total,
		},
	})
}

func (s *ReservationService) CancelBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	bookingID, err := idField(in, "booking_id")
	if err != nil {
		return nil, err
	}

	b, err := s.svc.CancelBooking(ctx, bookingID, userID)
	if err != nil {
		return nil, grpcError(err)
	}
	return structpb.NewStruct(map[string]any{"booking": bookingFields(b)})
}

func (s *ReservationService) UpdateStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actorID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	bookingID, err := idField(in, "booking_id")
	if err != nil {
		return nil, err
	}
	target, err := models.ParseBookingStatus(stringField(in, "status"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	b, err := s.svc.UpdateStatus(ctx, bookingID, target, actorID)
	if err != nil {
		return nil, grpcError(err)
	}
	return structpb.NewStruct(map[string]any{"booking": bookingFields(b)})
}

func (s *ReservationService) GetAvailability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	propertyID, err := idField(in, "property_id")
	if err != nil {
		return nil, err
	}

	p, err := s.svc.GetAvailability(ctx, propertyID)
	if err != nil {
		return nil, grpcError(err)
	}

	windows := make([]any, 0, len(p.Availability))
	for _, w := range p.Availability {
		windows = append(windows, map[string]any{
			"start": w.Start.Format(models.DateLayout),
			"end":   w.End.Format(models.DateLayout),
		})
	}
	return structpb.NewStruct(map[string]any{
		"property_id":     p.ID,
		"name":            p.Name,
		"price_per_night": p.PricePerNight,
		"max_guests":      p.MaxGuests,
		"number_of_units": p.Units(),
		"availability":    windows,
	})
}

func (s *ReservationService) caller(ctx context.Context) (int64, error) {
	id := userIDFromMetadata(ctx, s.userIDHeader)
	if id == 0 {
		return 0, status.Error(codes.Unauthenticated, "missing or invalid user id metadata")
	}
	return id, nil
}

func bookingFields(b *models.Booking) map[string]any {
	return map[string]any{
		"id":          b.ID,
		"property_id": b.PropertyID,
		"user_id":     b.UserID,
		"check_in":    b.CheckIn.Format(models.DateLayout),
		"check_out":   b.CheckOut.Format(models.DateLayout),
		"nights":      b.Nights,
		"guests":      b.Guests,
		"total_price": b.TotalPrice,
		"status":      string(b.Status),
	}
}

func stringField(in *structpb.Struct, key string) string {
	return strings.TrimSpace(in.GetFields()[key].GetStringValue())
}

// intField accepts a whole JSON number or a numeric string. Absent means zero.
func intField(in *structpb.Struct, key string) (int64, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return 0, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
		}
		return int64(n), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(strings.TrimSpace(kind.StringValue), 10, 64)
		if err != nil {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
		}
		return n, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
	}
}

func idField(in *structpb.Struct, key string) (int64, error) {
	id, err := intField(in, key)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, status.Error(codes.InvalidArgument, fmt.Sprintf("%s is required", key))
	}
	return id, nil
}

var _ ReservationServer = (*ReservationService)(nil)

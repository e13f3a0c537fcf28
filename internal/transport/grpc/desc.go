package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "salonbook.scheduling.v1.SchedulingService"

// SchedulingServiceServer is the server API of the scheduling service.
type SchedulingServiceServer interface {
	GetAvailability(context.Context, *GetAvailabilityRequest) (*GetAvailabilityResponse, error)
	MonthAvailability(context.Context, *MonthAvailabilityRequest) (*MonthAvailabilityResponse, error)
	BookAppointment(context.Context, *BookAppointmentRequest) (*BookingResponse, error)
	ChangeStatus(context.Context, *ChangeStatusRequest) (*BookingResponse, error)
	CancelBooking(context.Context, *CancelBookingRequest) (*BookingResponse, error)
	GetBooking(context.Context, *GetBookingRequest) (*BookingResponse, error)
	ListBookings(context.Context, *ListBookingsRequest) (*ListBookingsResponse, error)
	BlockDate(context.Context, *BlockDateRequest) (*OverrideResponse, error)
	SetDateHours(context.Context, *SetDateHoursRequest) (*OverrideResponse, error)
	UnblockDate(context.Context, *UnblockDateRequest) (*UnblockDateResponse, error)
	CreateResource(context.Context, *CreateResourceRequest) (*ResourceResponse, error)
	UpdateWeeklyTemplate(context.Context, *UpdateWeeklyTemplateRequest) (*ResourceResponse, error)
	DisableResource(context.Context, *ResourceRequest) (*ResourceResponse, error)
	GetResource(context.Context, *ResourceRequest) (*ResourceResponse, error)
	ListResources(context.Context, *ListResourcesRequest) (*ListResourcesResponse, error)
}

var SchedulingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetAvailability", SchedulingServiceServer.GetAvailability),
		unary("MonthAvailability", SchedulingServiceServer.MonthAvailability),
		unary("BookAppointment", SchedulingServiceServer.BookAppointment),
		unary("ChangeStatus", SchedulingServiceServer.ChangeStatus),
		unary("CancelBooking", SchedulingServiceServer.CancelBooking),
		unary("GetBooking", SchedulingServiceServer.GetBooking),
		unary("ListBookings", SchedulingServiceServer.ListBookings),
		unary("BlockDate", SchedulingServiceServer.BlockDate),
		unary("SetDateHours", SchedulingServiceServer.SetDateHours),
		unary("UnblockDate", SchedulingServiceServer.UnblockDate),
		unary("CreateResource", SchedulingServiceServer.CreateResource),
		unary("UpdateWeeklyTemplate", SchedulingServiceServer.UpdateWeeklyTemplate),
		unary("DisableResource", SchedulingServiceServer.DisableResource),
		unary("GetResource", SchedulingServiceServer.GetResource),
		unary("ListResources", SchedulingServiceServer.ListResources),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "salonbook/scheduling/v1/scheduling.json",
}

func RegisterSchedulingServiceServer(s grpc.ServiceRegistrar, srv SchedulingServiceServer) {
	s.RegisterService(&SchedulingServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary[Req, Resp any](method string, call func(SchedulingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(SchedulingServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

// SchedulingClient calls the scheduling service with the JSON codec.
type SchedulingClient struct {
	cc grpc.ClientConnInterface
}

func NewSchedulingClient(cc grpc.ClientConnInterface) *SchedulingClient {
	return &SchedulingClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *SchedulingClient, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SchedulingClient) GetAvailability(ctx context.Context, in *GetAvailabilityRequest, opts ...grpc.CallOption) (*GetAvailabilityResponse, error) {
	return invoke[GetAvailabilityResponse](ctx, c, "GetAvailability", in, opts)
}

func (c *SchedulingClient) MonthAvailability(ctx context.Context, in *MonthAvailabilityRequest, opts ...grpc.CallOption) (*MonthAvailabilityResponse, error) {
	return invoke[MonthAvailabilityResponse](ctx, c, "MonthAvailability", in, opts)
}

func (c *SchedulingClient) BookAppointment(ctx context.Context, in *BookAppointmentRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, "BookAppointment", in, opts)
}

func (c *SchedulingClient) ChangeStatus(ctx context.Context, in *ChangeStatusRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, "ChangeStatus", in, opts)
}

func (c *SchedulingClient) CancelBooking(ctx context.Context, in *CancelBookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, "CancelBooking", in, opts)
}

func (c *SchedulingClient) GetBooking(ctx context.Context, in *GetBookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, "GetBooking", in, opts)
}

func (c *SchedulingClient) ListBookings(ctx context.Context, in *ListBookingsRequest, opts ...grpc.CallOption) (*ListBookingsResponse, error) {
	return invoke[ListBookingsResponse](ctx, c, "ListBookings", in, opts)
}

func (c *SchedulingClient) BlockDate(ctx context.Context, in *BlockDateRequest, opts ...grpc.CallOption) (*OverrideResponse, error) {
	return invoke[OverrideResponse](ctx, c, "BlockDate", in, opts)
}

func (c *SchedulingClient) SetDateHours(ctx context.Context, in *SetDateHoursRequest, opts ...grpc.CallOption) (*OverrideResponse, error) {
	return invoke[OverrideResponse](ctx, c, "SetDateHours", in, opts)
}

func (c *SchedulingClient) UnblockDate(ctx context.Context, in *UnblockDateRequest, opts ...grpc.CallOption) (*UnblockDateResponse, error) {
	return invoke[UnblockDateResponse](ctx, c, "UnblockDate", in, opts)
}

func (c *SchedulingClient) CreateResource(ctx context.Context, in *CreateResourceRequest, opts ...grpc.CallOption) (*ResourceResponse, error) {
	return invoke[ResourceResponse](ctx, c, "CreateResource", in, opts)
}

func (c *SchedulingClient) UpdateWeeklyTemplate(ctx context.Context, in *UpdateWeeklyTemplateRequest, opts ...grpc.CallOption) (*ResourceResponse, error) {
	return invoke[ResourceResponse](ctx, c, "UpdateWeeklyTemplate", in, opts)
}

func (c *SchedulingClient) DisableResource(ctx context.Context, in *ResourceRequest, opts ...grpc.CallOption) (*ResourceResponse, error) {
	return invoke[ResourceResponse](ctx, c, "DisableResource", in, opts)
}

func (c *SchedulingClient) GetResource(ctx context.Context, in *ResourceRequest, opts ...grpc.CallOption) (*ResourceResponse, error) {
	return invoke[ResourceResponse](ctx, c, "GetResource", in, opts)
}

func (c *SchedulingClient) ListResources(ctx context.Context, in *ListResourcesRequest, opts ...grpc.CallOption) (*ListResourcesResponse, error) {
	return invoke[ListResourcesResponse](ctx, c, "ListResources", in, opts)
}

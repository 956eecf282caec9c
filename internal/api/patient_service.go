package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/frontdesk/internal/bus"
	"github.com/matheus3301/frontdesk/internal/store"
)

// PatientServiceName is the fully-qualified gRPC service name.
const PatientServiceName = "frontdesk.v1.PatientService"

// PatientService manages the local patient queue, appointments and chat log.
type PatientService struct {
	db  *store.DB
	bus *bus.Bus
	now func() time.Time
}

// NewPatientService creates the patient service.
func NewPatientService(db *store.DB, b *bus.Bus) *PatientService {
	return &PatientService{db: db, bus: b, now: time.Now}
}

// PatientServiceDesc describes PatientService for grpc.Server.RegisterService.
var PatientServiceDesc = grpc.ServiceDesc{
	ServiceName: PatientServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(PatientServiceName, "AddPatient", (*PatientService).AddPatient),
		unary(PatientServiceName, "UpdateStatus", (*PatientService).UpdateStatus),
		unary(PatientServiceName, "ListToday", (*PatientService).ListToday),
		unary(PatientServiceName, "AddAppointment", (*PatientService).AddAppointment),
		unary(PatientServiceName, "ListMessages", (*PatientService).ListMessages),
	},
	Metadata: "frontdesk/v1/patient.proto",
}

func (s *PatientService) AddPatient(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var p store.Patient
	if err := fromStruct(in, &p); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "name is required")
	}
	if p.Status != "" && !store.ValidStatus(p.Status) {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown status %q", p.Status)
	}
	p.ID = 0
	id, err := s.db.AddPatient(ctx, &p)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	saved, err := s.db.GetPatient(ctx, id)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	s.bus.Emit(bus.PatientAdded, saved)
	return respond(saved)
}

// UpdateStatus moves a patient through the queue and marks the record as edited.
func (s *PatientService) UpdateStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if !store.ValidStatus(req.Status) {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown status %q", req.Status)
	}
	err := s.db.UpdatePatientStatus(ctx, req.ID, req.Status)
	if errors.Is(err, store.ErrNotFound) {
		return nil, grpcstatus.Errorf(codes.NotFound, "patient %d not found", req.ID)
	}
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	p, err := s.db.GetPatient(ctx, req.ID)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	s.bus.Emit(bus.PatientStatusChanged, p)
	return respond(p)
}

// ListToday returns the day's queue. An optional "date" (YYYY-MM-DD) selects another day.
func (s *PatientService) ListToday(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		Date string `json:"date"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	day := s.now()
	if req.Date != "" {
		d, err := time.ParseInLocation(store.DateLayout, req.Date, time.Local)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.InvalidArgument, "invalid date %q", req.Date)
		}
		day = d
	}
	patients, err := s.db.TodayPatients(ctx, day)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	if patients == nil {
		patients = []store.Patient{}
	}
	return respond(map[string]any{"patients": patients})
}

func (s *PatientService) AddAppointment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var a store.Appointment
	if err := fromStruct(in, &a); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if _, err := time.Parse(store.DateLayout, a.Date); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "invalid date %q", a.Date)
	}
	if a.PatientID == 0 && strings.TrimSpace(a.PatientName) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "patient_id or patient_name is required")
	}
	if a.PatientID != 0 {
		if _, err := s.db.GetPatient(ctx, a.PatientID); errors.Is(err, store.ErrNotFound) {
			return nil, grpcstatus.Errorf(codes.NotFound, "patient %d not found", a.PatientID)
		} else if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
		}
	}
	a.ID = 0
	id, err := s.db.AddAppointment(ctx, &a)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	a.ID = id
	s.bus.Emit(bus.AppointmentAdded, a)
	return respond(a)
}

func (s *PatientService) ListMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		Limit int `json:"limit"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	msgs, err := s.db.ListMessages(ctx, req.Limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	return respond(map[string]any{"messages": msgs})
}

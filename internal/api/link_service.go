package api

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/frontdesk/internal/bus"
	"github.com/matheus3301/frontdesk/internal/comms"
	"github.com/matheus3301/frontdesk/internal/store"
	intsync "github.com/matheus3301/frontdesk/internal/sync"
)

// LinkServiceName is the fully-qualified gRPC service name.
const LinkServiceName = "frontdesk.v1.LinkService"

// LinkService reports on and drives the doctor link.
type LinkService struct {
	workspace   string
	startedAt   time.Time
	mgr         *comms.Manager
	engine      *intsync.Engine
	checkpoints *intsync.Checkpoints
	db          *store.DB
	bus         *bus.Bus
	logger      *zap.Logger
}

// NewLinkService creates the link service.
func NewLinkService(workspace string, mgr *comms.Manager, engine *intsync.Engine, cp *intsync.Checkpoints, db *store.DB, b *bus.Bus, logger *zap.Logger) *LinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkService{
		workspace:   workspace,
		startedAt:   time.Now(),
		mgr:         mgr,
		engine:      engine,
		checkpoints: cp,
		db:          db,
		bus:         b,
		logger:      logger,
	}
}

// LinkServiceDesc describes LinkService for grpc.Server.RegisterService.
var LinkServiceDesc = grpc.ServiceDesc{
	ServiceName: LinkServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(LinkServiceName, "GetStatus", (*LinkService).GetStatus),
		unary(LinkServiceName, "PushDashboard", (*LinkService).PushDashboard),
		unary(LinkServiceName, "SendMessage", (*LinkService).SendMessage),
		unary(LinkServiceName, "SendPatientData", (*LinkService).SendPatientData),
		unary(LinkServiceName, "SendFile", (*LinkService).SendFile),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "WatchEvents",
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(structpb.Struct)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return srv.(*LinkService).WatchEvents(in, stream)
		},
	}},
	Metadata: "frontdesk/v1/link.proto",
}

// Status is the GetStatus response body.
type Status struct {
	Workspace        string `json:"workspace"`
	State            string `json:"state"`
	Transport        bool   `json:"transport"`
	Presence         bool   `json:"presence"`
	IsConnected      bool   `json:"isConnected"`
	ConnectedClients int    `json:"connectedClients"`
	LastPush         string `json:"lastPush,omitempty"`
	UptimeMs         int64  `json:"uptimeMs"`
}

func (s *LinkService) GetStatus(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	snap := s.mgr.State()
	cs := s.mgr.Status()
	st := Status{
		Workspace:        s.workspace,
		State:            string(snap.State),
		Transport:        snap.Transport,
		Presence:         snap.Presence,
		IsConnected:      cs.IsConnected,
		ConnectedClients: cs.ConnectedClients,
		UptimeMs:         time.Since(s.startedAt).Milliseconds(),
	}
	if s.checkpoints != nil {
		if t, ok, err := s.checkpoints.Last(ctx, intsync.LastPushKey); err == nil && ok {
			st.LastPush = t.Format(time.RFC3339)
		}
	}
	return respond(st)
}

func (s *LinkService) PushDashboard(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return respond(s.engine.Push(ctx))
}

func (s *LinkService) SendMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		Message string `json:"message"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "message is required")
	}
	res, err := s.mgr.SendMessage(ctx, req.Message)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "send message: %v", err)
	}
	return respond(res)
}

// SendPatientData forwards a stored patient to the doctor.
func (s *LinkService) SendPatientData(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		PatientID int64           `json:"patientId"`
		Files     []comms.FileRef `json:"files"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	p, err := s.db.GetPatient(ctx, req.PatientID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, grpcstatus.Errorf(codes.NotFound, "patient %d not found", req.PatientID)
	}
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "get patient: %v", err)
	}
	res, err := s.mgr.SendPatientData(comms.PatientTransfer{
		PatientID:   p.ID,
		PatientData: *p,
		Files:       req.Files,
	})
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "send patient: %v", err)
	}
	return respond(res)
}

func (s *LinkService) SendFile(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		PatientID int64  `json:"patientId"`
		Path      string `json:"path"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if req.Path == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "path is required")
	}
	res, err := s.mgr.SendFile(req.PatientID, req.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, grpcstatus.Errorf(codes.NotFound, "%v", err)
	case err != nil:
		return nil, grpcstatus.Errorf(codes.Internal, "send file: %v", err)
	}
	return respond(res)
}

// WatchEvents streams bus events whose kind starts with the requested prefix.
func (s *LinkService) WatchEvents(in *structpb.Struct, stream grpc.ServerStream) error {
	var req struct {
		Prefix string `json:"prefix"`
	}
	if err := fromStruct(in, &req); err != nil {
		return grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}

	ch, unsub := s.bus.Subscribe(req.Prefix, 64)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			out, err := toStruct(map[string]any{
				"kind":      evt.Kind,
				"timestamp": evt.Timestamp.Format(time.RFC3339Nano),
				"payload":   evt.Payload,
			})
			if err != nil {
				s.logger.Warn("skipping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func respond(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return out, nil
}

package api

import (
	"context"
	"errors"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/frontdesk/internal/backup"
)

// BackupServiceName is the fully-qualified gRPC service name.
const BackupServiceName = "frontdesk.v1.BackupService"

// BackupService exposes JSON snapshots of the patient records.
type BackupService struct {
	mgr *backup.Manager
}

func NewBackupService(mgr *backup.Manager) *BackupService {
	return &BackupService{mgr: mgr}
}

// BackupServiceDesc describes BackupService for grpc.Server.RegisterService.
var BackupServiceDesc = grpc.ServiceDesc{
	ServiceName: BackupServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(BackupServiceName, "Create", (*BackupService).Create),
		unary(BackupServiceName, "List", (*BackupService).List),
		unary(BackupServiceName, "Restore", (*BackupService).Restore),
	},
	Metadata: "frontdesk/v1/backup.proto",
}

func (s *BackupService) Create(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	info, err := s.mgr.Create(ctx)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return respond(info)
}

func (s *BackupService) List(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	infos, err := s.mgr.List()
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	if infos == nil {
		infos = []backup.Info{}
	}
	return respond(map[string]any{"backups": infos})
}

// Restore loads a backup by ID, file name or path. An empty ref restores the newest.
func (s *BackupService) Restore(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		Ref string `json:"ref"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	info, err := s.mgr.Restore(ctx, req.Ref)
	switch {
	case errors.Is(err, backup.ErrNoBackups), errors.Is(err, os.ErrNotExist):
		return nil, grpcstatus.Errorf(codes.NotFound, "%v", err)
	case err != nil:
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return respond(info)
}

package api

import "google.golang.org/grpc"

// Register adds every daemon service to s.
func Register(s *grpc.Server, link *LinkService, patients *PatientService, backups *BackupService) {
	s.RegisterService(&LinkServiceDesc, link)
	s.RegisterService(&PatientServiceDesc, patients)
	s.RegisterService(&BackupServiceDesc, backups)
}

// Package admin aggregates cross-feature statistics for the moderation
// dashboard. All mutation goes through the owning feature services; this
// package only reads.
package admin

import (
	"context"

	"datashare/internal/consent"
	"datashare/internal/report"
	"datashare/pkg/domain"
)

// UserCounter counts accounts by role.
type UserCounter interface {
	CountByRole(ctx context.Context) (map[domain.Role]int, error)
}

// RecordCounter counts data records.
type RecordCounter interface {
	Count(ctx context.Context) (int, error)
}

// ConsentCounter counts consents by lifecycle state.
type ConsentCounter interface {
	CountByStatus(ctx context.Context) (map[consent.Status]int, error)
}

// ReportCounter counts reports by review state.
type ReportCounter interface {
	CountByStatus(ctx context.Context) (map[report.Status]int, error)
}

// Statistics is the dashboard aggregate.
type Statistics struct {
	Users    UserStatistics    `json:"users"`
	Records  RecordStatistics  `json:"data"`
	Consents ConsentStatistics `json:"consents"`
	Reports  ReportStatistics  `json:"reports"`
}

type UserStatistics struct {
	Total        int `json:"total"`
	DataOwners   int `json:"dataOwners"`
	ServiceUsers int `json:"serviceUsers"`
	Admins       int `json:"admins"`
}

type RecordStatistics struct {
	Total int `json:"total"`
}

type ConsentStatistics struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Revoked  int `json:"revoked"`
}

type ReportStatistics struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Validated int `json:"validated"`
	Rejected  int `json:"rejected"`
}

// Service computes dashboard statistics.
type Service struct {
	users    UserCounter
	records  RecordCounter
	consents ConsentCounter
	reports  ReportCounter
}

func NewService(users UserCounter, records RecordCounter, consents ConsentCounter, reports ReportCounter) *Service {
	return &Service{users: users, records: records, consents: consents, reports: reports}
}

// Statistics gathers one snapshot across all stores.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	roles, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, err
	}
	recordTotal, err := s.records.Count(ctx)
	if err != nil {
		return nil, err
	}
	consents, err := s.consents.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	reports, err := s.reports.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		Users: UserStatistics{
			DataOwners:   roles[domain.RoleDataOwner],
			ServiceUsers: roles[domain.RoleServiceUser],
			Admins:       roles[domain.RoleAdmin],
		},
		Records: RecordStatistics{Total: recordTotal},
		Consents: ConsentStatistics{
			Pending:  consents[consent.StatusPending],
			Approved: consents[consent.StatusApproved],
			Rejected: consents[consent.StatusRejected],
			Revoked:  consents[consent.StatusRevoked],
		},
		Reports: ReportStatistics{
			Pending:   reports[report.StatusPending],
			Validated: reports[report.StatusValidated],
			Rejected:  reports[report.StatusRejected],
		},
	}
	for _, n := range roles {
		stats.Users.Total += n
	}
	stats.Consents.Total = stats.Consents.Pending + stats.Consents.Approved +
		stats.Consents.Rejected + stats.Consents.Revoked
	stats.Reports.Total = stats.Reports.Pending + stats.Reports.Validated + stats.Reports.Rejected
	return stats, nil
}
